package enrollment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tech-arch1tect/secondfactor/config"
	"github.com/tech-arch1tect/secondfactor/services/backupcode"
	"github.com/tech-arch1tect/secondfactor/services/emailotp"
	"github.com/tech-arch1tect/secondfactor/services/logging"
	"github.com/tech-arch1tect/secondfactor/services/mfarecord"
	"github.com/tech-arch1tect/secondfactor/services/totp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNoMethodSelected = errors.New("at least one MFA method must be selected")
	ErrEmailRequired    = errors.New("an email address is required for the email method")
	ErrAlreadyEnabled   = errors.New("MFA is already enabled for this user")
	ErrInvalidState     = errors.New("operation not valid in the current enrollment state")
	ErrIncorrectAppCode = errors.New("incorrect authenticator code")
)

// Service walks a user through MethodSelection, the optional app and email
// verification legs, and activation. Until activation commits, the only
// state is the Session the caller holds; nothing is written to the store,
// so abandoning mid-flow cannot leave a half-enabled record.
type Service struct {
	config  *config.Config
	db      *gorm.DB
	totp    *totp.Service
	email   *emailotp.Service
	backup  *backupcode.Service
	records *mfarecord.Store
	logger  *logging.Service
}

func NewService(cfg *config.Config, db *gorm.DB, totpSvc *totp.Service, email *emailotp.Service, backup *backupcode.Service, records *mfarecord.Store, logger *logging.Service) *Service {
	return &Service{
		config:  cfg,
		db:      db,
		totp:    totpSvc,
		email:   email,
		backup:  backup,
		records: records,
		logger:  logger,
	}
}

// Begin leaves MethodSelection. For the app method the generated secret and
// provisioning URI ride back on the session for the caller to display. For
// an email-only selection the first code is issued immediately; on
// ErrDeliveryFailed the session is still returned so the caller can resend.
func (s *Service) Begin(userID string, sel Selection) (*Session, error) {
	if !sel.WantsApp && !sel.WantsEmail {
		return nil, ErrNoMethodSelected
	}
	if sel.WantsEmail && sel.Email == "" {
		return nil, ErrEmailRequired
	}

	record, err := s.records.Get(userID)
	if err != nil && !errors.Is(err, mfarecord.ErrNotFound) {
		return nil, err
	}
	if record != nil && record.Enabled {
		if s.logger != nil {
			s.logger.Warn("enrollment rejected - MFA already enabled",
				zap.String("user_id", userID))
		}
		return nil, ErrAlreadyEnabled
	}

	sess := &Session{
		ID:         uuid.New().String(),
		UserID:     userID,
		WantsApp:   sel.WantsApp,
		WantsEmail: sel.WantsEmail,
		Email:      sel.Email,
		CreatedAt:  time.Now(),
	}

	if sel.WantsApp {
		label := sel.Email
		if label == "" {
			label = userID
		}
		key, err := s.totp.GenerateSecret(label)
		if err != nil {
			return nil, err
		}
		sess.TotpSecret = key.Secret
		sess.ProvisioningURI = key.ProvisioningURI
		sess.State = StateAppSetup

		if s.logger != nil {
			s.logger.Info("enrollment started",
				zap.String("user_id", userID),
				zap.String("session_id", sess.ID),
				zap.Bool("wants_email", sel.WantsEmail))
		}
		return sess, nil
	}

	sess.State = StateEmailVerify
	if s.logger != nil {
		s.logger.Info("enrollment started",
			zap.String("user_id", userID),
			zap.String("session_id", sess.ID),
			zap.Bool("wants_email", true))
	}
	if err := s.email.Issue(userID, sel.Email); err != nil {
		return sess, err
	}
	return sess, nil
}

// ConfirmApp checks a candidate authenticator code against the session's
// uncommitted secret. Retries are unlimited here: no secret has been stored
// yet, so there is nothing to lock out. Success moves to the email leg when
// one was selected, otherwise straight to activation.
func (s *Service) ConfirmApp(sess *Session, code string) (*Activation, error) {
	if sess == nil || (sess.State != StateAppSetup && sess.State != StateAppVerify) {
		return nil, ErrInvalidState
	}
	sess.State = StateAppVerify

	if !s.totp.ValidateCode(sess.TotpSecret, code) {
		if s.logger != nil {
			s.logger.Warn("enrollment app code rejected",
				zap.String("user_id", sess.UserID),
				zap.String("session_id", sess.ID))
		}
		return nil, ErrIncorrectAppCode
	}

	sess.AppVerified = true

	if sess.WantsEmail {
		sess.State = StateEmailVerify
		if err := s.email.Issue(sess.UserID, sess.Email); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return s.activate(sess)
}

// ConfirmEmail verifies the pending email code; the channel's expiry and
// attempt rules apply unchanged. The returned count is how many attempts
// remain after an incorrect guess.
func (s *Service) ConfirmEmail(sess *Session, code string) (*Activation, int, error) {
	if sess == nil || sess.State != StateEmailVerify {
		return nil, 0, ErrInvalidState
	}

	remaining, err := s.email.Verify(sess.UserID, code)
	if err != nil {
		return nil, remaining, err
	}

	activation, err := s.activate(sess)
	return activation, 0, err
}

// ResendEmail issues a fresh code for the session's email leg. Cooldown is
// the caller's throttle, not enforced here.
func (s *Service) ResendEmail(sess *Session) error {
	if sess == nil || sess.State != StateEmailVerify {
		return ErrInvalidState
	}
	return s.email.Issue(sess.UserID, sess.Email)
}

// activate commits the enrollment: the record and the backup-code hashes
// land in one transaction, and the plaintext codes are returned exactly
// once.
func (s *Service) activate(sess *Session) (*Activation, error) {
	codes, err := s.backup.Generate()
	if err != nil {
		return nil, err
	}

	enabled := true
	update := mfarecord.Update{Enabled: &enabled}
	if sess.WantsApp && sess.AppVerified {
		update.TotpSecret = &sess.TotpSecret
	}
	if sess.WantsEmail {
		emailEnrolled := true
		update.EmailEnrolled = &emailEnrolled
		update.Email = &sess.Email
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.records.UpsertIn(tx, sess.UserID, update); err != nil {
			return err
		}
		return s.backup.StoreCodesIn(tx, sess.UserID, codes)
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("enrollment activation failed",
				zap.Error(err),
				zap.String("user_id", sess.UserID))
		}
		return nil, fmt.Errorf("failed to activate MFA: %w", err)
	}

	sess.State = StateActivated

	if s.logger != nil {
		s.logger.Info("MFA activated",
			zap.String("user_id", sess.UserID),
			zap.Bool("app", sess.WantsApp && sess.AppVerified),
			zap.Bool("email", sess.WantsEmail))
	}

	return &Activation{BackupCodes: codes}, nil
}
