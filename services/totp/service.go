package totp

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/tech-arch1tect/secondfactor/config"
	"github.com/tech-arch1tect/secondfactor/services/logging"
	"go.uber.org/zap"
)

const (
	period     = 30
	secretSize = 20 // 160 bits, RFC 4226 minimum
)

// Key is a freshly generated TOTP secret plus the otpauth:// URI the caller
// renders for the authenticator app. Nothing is persisted here; committing
// the secret is the enrollment orchestrator's job.
type Key struct {
	Secret          string
	ProvisioningURI string
}

// Service computes and checks RFC 6238 codes. It holds no mutable state and
// is safe for concurrent use.
type Service struct {
	config *config.Config
	logger *logging.Service
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		logger: logger,
	}
}

func (s *Service) GenerateSecret(label string) (*Key, error) {
	issuer := s.issuer()

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: label,
		Period:      period,
		SecretSize:  secretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to generate TOTP key",
				zap.Error(err),
				zap.String("label", label))
		}
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("TOTP key generated",
			zap.String("issuer", issuer),
			zap.String("label", label))
	}

	return &Key{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// ValidateCode checks code against secret for the current time step plus the
// configured skew window either side. Malformed codes are simply invalid;
// the comparison inside the otp library is constant time and the result
// never indicates which step matched.
func (s *Service) ValidateCode(secret, code string) bool {
	return s.ValidateCodeAt(secret, code, time.Now())
}

func (s *Service) ValidateCodeAt(secret, code string, at time.Time) bool {
	if secret == "" {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    period,
		Skew:      s.windowSteps(),
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// Wrong code length or an undecodable secret; both are just
		// failed validations from the caller's point of view.
		return false
	}

	return valid
}

func (s *Service) windowSteps() uint {
	if s.config.TOTP.WindowSteps == 0 {
		return 1
	}
	return s.config.TOTP.WindowSteps
}

func (s *Service) issuer() string {
	if s.config.TOTP.Issuer != "" {
		return s.config.TOTP.Issuer
	}
	if s.config.App.Name != "" {
		return s.config.App.Name
	}
	return "secondfactor"
}
