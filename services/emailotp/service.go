package emailotp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/tech-arch1tect/secondfactor/config"
	"github.com/tech-arch1tect/secondfactor/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidInput    = errors.New("code must be 6 digits")
	ErrNoPendingCode   = errors.New("no pending email code")
	ErrExpired         = errors.New("email code has expired")
	ErrTooManyAttempts = errors.New("too many failed attempts")
	ErrIncorrectCode   = errors.New("incorrect email code")
	ErrDeliveryFailed  = errors.New("failed to deliver email code")
)

var codeFormat = regexp.MustCompile(`^[0-9]{6}$`)

type Service struct {
	config   *config.Config
	db       *gorm.DB
	notifier Notifier
	logger   *logging.Service
}

func NewService(cfg *config.Config, db *gorm.DB, notifier Notifier, logger *logging.Service) *Service {
	return &Service{
		config:   cfg,
		db:       db,
		notifier: notifier,
		logger:   logger,
	}
}

// Issue writes a fresh pending code for the user, replacing any earlier one,
// then hands it to the Notifier. A delivery failure returns
// ErrDeliveryFailed but leaves the pending code in place so the caller can
// retry delivery without invalidating it. Resend throttling is deliberately
// not enforced here; it is a UX concern layered above.
func (s *Service) Issue(userID, destination string) error {
	code, err := randomDigits()
	if err != nil {
		return fmt.Errorf("failed to generate email code: %w", err)
	}

	pending := &PendingEmailCode{
		UserID:    userID,
		Code:      code,
		ExpiresAt: time.Now().Add(s.config.EmailOTP.Expiry),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&PendingEmailCode{}).Error; err != nil {
			return fmt.Errorf("failed to replace pending email code: %w", err)
		}
		if err := tx.Create(pending).Error; err != nil {
			return fmt.Errorf("failed to store pending email code: %w", err)
		}
		return nil
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to issue email code",
				zap.Error(err),
				zap.String("user_id", userID))
		}
		return err
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(s.config.EmailOTP.Expiry.Minutes()))

	if err := s.notifier.Send(destination, s.config.EmailOTP.Subject, body); err != nil {
		if s.logger != nil {
			s.logger.Error("email code delivery failed",
				zap.Error(err),
				zap.String("user_id", userID))
		}
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	if s.logger != nil {
		s.logger.Info("email code issued", zap.String("user_id", userID))
	}
	return nil
}

// Verify checks a candidate against the pending code. The checks run in a
// fixed order: missing, expired, attempt cap, then the code itself. Expired
// rows and rows that hit the cap are removed, so a retry surfaces
// ErrNoPendingCode. On a mismatch the returned count says how many attempts
// remain; on success the row is gone and the code cannot be replayed.
func (s *Service) Verify(userID, code string) (int, error) {
	if !codeFormat.MatchString(code) {
		return 0, ErrInvalidInput
	}

	maxAttempts := s.config.EmailOTP.MaxAttempts
	remaining := 0

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var pending PendingEmailCode
		if err := tx.Where("user_id = ?", userID).First(&pending).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoPendingCode
			}
			return fmt.Errorf("failed to load pending email code: %w", err)
		}

		if time.Now().After(pending.ExpiresAt) {
			if err := tx.Delete(&pending).Error; err != nil {
				return fmt.Errorf("failed to remove expired email code: %w", err)
			}
			return ErrExpired
		}

		if pending.Attempts >= maxAttempts {
			if err := tx.Delete(&pending).Error; err != nil {
				return fmt.Errorf("failed to remove exhausted email code: %w", err)
			}
			return ErrTooManyAttempts
		}

		if subtle.ConstantTimeCompare([]byte(pending.Code), []byte(code)) != 1 {
			// Guard on the current attempt count so two racing
			// wrong guesses each burn exactly one attempt.
			result := tx.Model(&PendingEmailCode{}).
				Where("id = ? AND attempts = ?", pending.ID, pending.Attempts).
				Update("attempts", pending.Attempts+1)
			if result.Error != nil {
				return fmt.Errorf("failed to record email code attempt: %w", result.Error)
			}
			remaining = maxAttempts - (pending.Attempts + 1)
			if remaining < 0 {
				remaining = 0
			}
			return ErrIncorrectCode
		}

		result := tx.Where("id = ?", pending.ID).Delete(&PendingEmailCode{})
		if result.Error != nil {
			return fmt.Errorf("failed to consume email code: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			// Another verification won the race.
			return ErrNoPendingCode
		}
		return nil
	})
	if err != nil {
		if s.logger != nil && !isBusinessOutcome(err) {
			s.logger.Error("email code verification failed",
				zap.Error(err),
				zap.String("user_id", userID))
		}
		return remaining, err
	}

	if s.logger != nil {
		s.logger.Info("email code verified", zap.String("user_id", userID))
	}
	return 0, nil
}

// CancelIn drops any pending code for the user inside the caller's
// transaction, used when MFA is disabled.
func (s *Service) CancelIn(tx *gorm.DB, userID string) error {
	if err := tx.Where("user_id = ?", userID).Delete(&PendingEmailCode{}).Error; err != nil {
		return fmt.Errorf("failed to cancel pending email code: %w", err)
	}
	return nil
}

func isBusinessOutcome(err error) bool {
	return errors.Is(err, ErrNoPendingCode) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrTooManyAttempts) ||
		errors.Is(err, ErrIncorrectCode)
}

func randomDigits() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
