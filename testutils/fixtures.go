package testutils

import (
	"time"

	"github.com/tech-arch1tect/secondfactor/config"
	"golang.org/x/crypto/bcrypt"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "Test App",
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "console",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
		TOTP: config.TOTPConfig{
			Issuer:      "Test App",
			WindowSteps: 1,
		},
		EmailOTP: config.EmailOTPConfig{
			Expiry:         10 * time.Minute,
			MaxAttempts:    3,
			ResendCooldown: 60 * time.Second,
			Subject:        "Your verification code",
		},
		BackupCodes: config.BackupCodesConfig{
			Count:      8,
			Length:     8,
			BcryptCost: bcrypt.MinCost,
		},
		StepUp: config.StepUpConfig{
			TokenSecret: "test-stepup-secret-32-chars-long",
			TokenExpiry: 5 * time.Minute,
			Issuer:      "test-issuer",
		},
		Mail: config.MailConfig{
			Host:        "localhost",
			Port:        587,
			Encryption:  "none",
			FromAddress: "noreply@example.com",
			FromName:    "Test App",
		},
	}
}
