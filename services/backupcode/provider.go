package backupcode

import (
	"github.com/tech-arch1tect/secondfactor/config"
	"github.com/tech-arch1tect/secondfactor/services/logging"
	"github.com/tech-arch1tect/secondfactor/services/mfarecord"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func NewProvider(cfg *config.Config, db *gorm.DB, records *mfarecord.Store, logger *logging.Service) *Service {
	return NewService(cfg, db, records, logger)
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
