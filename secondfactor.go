// Package secondfactor is a composable multi-factor authentication
// subsystem: TOTP, email one-time codes and backup codes, with an
// enrollment orchestrator and a step-up verification gate on top. The
// embedding application owns primary authentication and supplies an
// already-authenticated user id to every call.
package secondfactor

import (
	"github.com/tech-arch1tect/secondfactor/config"
	"github.com/tech-arch1tect/secondfactor/database"
	"github.com/tech-arch1tect/secondfactor/handlers"
	"github.com/tech-arch1tect/secondfactor/services/backupcode"
	"github.com/tech-arch1tect/secondfactor/services/emailotp"
	"github.com/tech-arch1tect/secondfactor/services/enrollment"
	"github.com/tech-arch1tect/secondfactor/services/logging"
	"github.com/tech-arch1tect/secondfactor/services/mail"
	"github.com/tech-arch1tect/secondfactor/services/mfarecord"
	"github.com/tech-arch1tect/secondfactor/services/stepup"
	"github.com/tech-arch1tect/secondfactor/services/totp"
	"go.uber.org/fx"
)

// Module wires the whole subsystem, SMTP Notifier included. Applications
// that deliver codes some other way should use Core and provide their own
// emailotp.Notifier.
var Module = fx.Options(
	Core,
	mail.Module,
)

// Core is everything except the Notifier implementation.
var Core = fx.Options(
	config.Module,
	logging.Module,
	database.Module,
	mfarecord.Module,
	totp.Module,
	backupcode.Module,
	emailotp.Module,
	enrollment.Module,
	stepup.Module,
	handlers.Module,
)
