package handlers

import (
	"github.com/tech-arch1tect/secondfactor/config"
	"github.com/tech-arch1tect/secondfactor/services/enrollment"
	"github.com/tech-arch1tect/secondfactor/services/logging"
	"github.com/tech-arch1tect/secondfactor/services/stepup"
	"go.uber.org/fx"
)

func NewProvider(cfg *config.Config, enrollSvc *enrollment.Service, gate *stepup.Service, logger *logging.Service) *MFAHandler {
	return NewMFAHandler(cfg, enrollSvc, gate, logger)
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
