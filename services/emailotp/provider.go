package emailotp

import (
	"github.com/tech-arch1tect/secondfactor/config"
	"github.com/tech-arch1tect/secondfactor/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func NewProvider(cfg *config.Config, db *gorm.DB, notifier Notifier, logger *logging.Service) *Service {
	return NewService(cfg, db, notifier, logger)
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
