package enrollment

import (
	"github.com/tech-arch1tect/secondfactor/config"
	"github.com/tech-arch1tect/secondfactor/services/backupcode"
	"github.com/tech-arch1tect/secondfactor/services/emailotp"
	"github.com/tech-arch1tect/secondfactor/services/logging"
	"github.com/tech-arch1tect/secondfactor/services/mfarecord"
	"github.com/tech-arch1tect/secondfactor/services/totp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func NewProvider(cfg *config.Config, db *gorm.DB, totpSvc *totp.Service, email *emailotp.Service, backup *backupcode.Service, records *mfarecord.Store, logger *logging.Service) *Service {
	return NewService(cfg, db, totpSvc, email, backup, records, logger)
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
