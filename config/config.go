package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig         `envPrefix:"SF_APP_"`
	Log         LogConfig         `envPrefix:"SF_LOG_"`
	Database    DatabaseConfig    `envPrefix:"SF_DATABASE_"`
	TOTP        TOTPConfig        `envPrefix:"SF_TOTP_"`
	EmailOTP    EmailOTPConfig    `envPrefix:"SF_EMAIL_OTP_"`
	BackupCodes BackupCodesConfig `envPrefix:"SF_BACKUP_CODES_"`
	StepUp      StepUpConfig      `envPrefix:"SF_STEPUP_"`
	Mail        MailConfig        `envPrefix:"SF_MAIL_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"secondfactor"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"secondfactor.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type TOTPConfig struct {
	Issuer      string `env:"ISSUER"`
	WindowSteps uint   `env:"WINDOW_STEPS" envDefault:"1"`
}

type EmailOTPConfig struct {
	Expiry         time.Duration `env:"EXPIRY" envDefault:"10m"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	ResendCooldown time.Duration `env:"RESEND_COOLDOWN" envDefault:"60s"`
	Subject        string        `env:"SUBJECT" envDefault:"Your verification code"`
}

type BackupCodesConfig struct {
	Count      int `env:"COUNT" envDefault:"8"`
	Length     int `env:"LENGTH" envDefault:"8"`
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`
}

type StepUpConfig struct {
	TokenSecret string        `env:"TOKEN_SECRET"`
	TokenExpiry time.Duration `env:"TOKEN_EXPIRY" envDefault:"5m"`
	Issuer      string        `env:"ISSUER" envDefault:"secondfactor"`
}

type MailConfig struct {
	Host        string `env:"HOST" envDefault:"localhost"`
	Port        int    `env:"PORT" envDefault:"587"`
	Username    string `env:"USERNAME"`
	Password    string `env:"PASSWORD"`
	Encryption  string `env:"ENCRYPTION" envDefault:"starttls"`
	FromAddress string `env:"FROM_ADDRESS"`
	FromName    string `env:"FROM_NAME"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	return env.Parse(cfg)
}
