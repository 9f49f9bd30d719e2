package database

import (
	"github.com/tech-arch1tect/secondfactor/config"
	"github.com/tech-arch1tect/secondfactor/services/backupcode"
	"github.com/tech-arch1tect/secondfactor/services/emailotp"
	"github.com/tech-arch1tect/secondfactor/services/mfarecord"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Options(
	fx.Provide(ProvideDatabaseFx),
)

// DefaultModels returns every model this module persists.
func DefaultModels() []any {
	return []any{
		&mfarecord.MfaRecord{},
		&backupcode.BackupCode{},
		&emailotp.PendingEmailCode{},
	}
}

func ProvideDatabaseFx(cfg *config.Config) (*gorm.DB, error) {
	return ProvideDatabase(*cfg, WithModels(DefaultModels()...))
}
