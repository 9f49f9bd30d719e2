package mfarecord

import (
	"github.com/tech-arch1tect/secondfactor/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func NewProvider(db *gorm.DB, logger *logging.Service) *Store {
	return NewStore(db, logger)
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
