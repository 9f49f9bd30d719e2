package stepup

import (
	"errors"
	"fmt"
	"regexp"

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
	ErrNotConfigured     = errors.New("MFA is not enabled for this user")
	ErrMethodUnavailable = errors.New("requested step-up method is not available")
)

type Method string

const (
	MethodTOTP       Method = "totp"
	MethodEmail      Method = "email"
	MethodBackupCode Method = "backup_code"
)

type Reason string

const (
	ReasonNotConfigured     Reason = "not_configured"
	ReasonMethodUnavailable Reason = "method_unavailable"
	ReasonMethodRequired    Reason = "method_required"
	ReasonInvalidInput      Reason = "invalid_input"
	ReasonIncorrectCode     Reason = "incorrect_code"
	ReasonExpired           Reason = "expired"
	ReasonTooManyAttempts   Reason = "too_many_attempts"
	ReasonNoPendingCode     Reason = "no_pending_code"
)

// Result is the gate's only output. A denial always carries a specific
// reason so the caller can tell the user "expired" or "too many attempts"
// instead of a generic failure. The gate never touches the guarded resource;
// acting on Verified is entirely the caller's job.
type Result struct {
	Verified          bool
	Reason            Reason
	Method            Method
	Token             string
	RemainingAttempts int
}

func denied(reason Reason, method Method) *Result {
	return &Result{Verified: false, Reason: reason, Method: method}
}

var totpCodeFormat = regexp.MustCompile(`^[0-9]{6}$`)

// Service is the reusable "prove your second factor right now" gate used
// before sensitive actions.
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

// Methods reports which step-up methods the user can currently use, for the
// caller's method-choice step. An empty slice means not configured.
func (s *Service) Methods(userID string) ([]Method, error) {
	record, err := s.records.Get(userID)
	if err != nil {
		if errors.Is(err, mfarecord.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !record.Enabled {
		return nil, nil
	}

	var methods []Method
	if record.HasTotp() {
		methods = append(methods, MethodTOTP)
	}
	if record.HasEmail() {
		methods = append(methods, MethodEmail)
	}
	remaining, err := s.backup.Remaining(userID)
	if err != nil {
		return nil, err
	}
	if remaining > 0 {
		methods = append(methods, MethodBackupCode)
	}
	return methods, nil
}

// SendEmailCode issues a step-up code to the user's enrolled address.
func (s *Service) SendEmailCode(userID string) error {
	record, err := s.records.Get(userID)
	if err != nil {
		if errors.Is(err, mfarecord.ErrNotFound) {
			return ErrNotConfigured
		}
		return err
	}
	if !record.Enabled {
		return ErrNotConfigured
	}
	if !record.HasEmail() {
		return ErrMethodUnavailable
	}
	return s.email.Issue(userID, record.Email)
}

// RequireStepUp verifies the supplied proof and answers Verified or Denied
// with a reason. Errors are reserved for infrastructure faults; every
// expected outcome, including "MFA not configured", comes back as a Result.
func (s *Service) RequireStepUp(userID string, method Method, code string) (*Result, error) {
	record, err := s.records.Get(userID)
	if err != nil {
		if errors.Is(err, mfarecord.ErrNotFound) {
			return denied(ReasonNotConfigured, method), nil
		}
		return nil, err
	}
	if !record.Enabled {
		if s.logger != nil {
			s.logger.Warn("step-up denied - MFA not enabled",
				zap.String("user_id", userID))
		}
		return denied(ReasonNotConfigured, method), nil
	}

	method, result := s.resolveMethod(record, method)
	if result != nil {
		return result, nil
	}

	switch method {
	case MethodTOTP:
		result, err = s.verifyTotp(record, code)
	case MethodEmail:
		result, err = s.verifyEmail(record, code)
	case MethodBackupCode:
		result, err = s.verifyBackupCode(record, code)
	default:
		return denied(ReasonMethodUnavailable, method), nil
	}
	if err != nil {
		return nil, err
	}

	if result.Verified {
		if err := s.records.TouchLastUsed(userID); err != nil {
			return nil, err
		}
		token, err := s.mintProofToken(userID, result.Method)
		if err != nil {
			return nil, err
		}
		result.Token = token

		if s.logger != nil {
			s.logger.Info("step-up verified",
				zap.String("user_id", userID),
				zap.String("method", string(result.Method)))
		}
	} else if s.logger != nil {
		s.logger.Warn("step-up denied",
			zap.String("user_id", userID),
			zap.String("method", string(result.Method)),
			zap.String("reason", string(result.Reason)))
	}

	return result, nil
}

// resolveMethod auto-selects when only one primary method exists, matching
// the flow where the user never sees a choice screen.
func (s *Service) resolveMethod(record *mfarecord.MfaRecord, method Method) (Method, *Result) {
	switch method {
	case MethodTOTP:
		if !record.HasTotp() {
			return method, denied(ReasonMethodUnavailable, method)
		}
		return method, nil
	case MethodEmail:
		if !record.HasEmail() {
			return method, denied(ReasonMethodUnavailable, method)
		}
		return method, nil
	case MethodBackupCode:
		return method, nil
	case "":
		if record.HasTotp() && !record.HasEmail() {
			return MethodTOTP, nil
		}
		if record.HasEmail() && !record.HasTotp() {
			return MethodEmail, nil
		}
		return method, denied(ReasonMethodRequired, method)
	default:
		return method, denied(ReasonMethodUnavailable, method)
	}
}

func (s *Service) verifyTotp(record *mfarecord.MfaRecord, code string) (*Result, error) {
	if !totpCodeFormat.MatchString(code) {
		return denied(ReasonInvalidInput, MethodTOTP), nil
	}
	if !s.totp.ValidateCode(record.TotpSecret, code) {
		return denied(ReasonIncorrectCode, MethodTOTP), nil
	}
	return &Result{Verified: true, Method: MethodTOTP}, nil
}

func (s *Service) verifyEmail(record *mfarecord.MfaRecord, code string) (*Result, error) {
	remaining, err := s.email.Verify(record.UserID, code)
	if err == nil {
		return &Result{Verified: true, Method: MethodEmail}, nil
	}

	switch {
	case errors.Is(err, emailotp.ErrInvalidInput):
		return denied(ReasonInvalidInput, MethodEmail), nil
	case errors.Is(err, emailotp.ErrNoPendingCode):
		return denied(ReasonNoPendingCode, MethodEmail), nil
	case errors.Is(err, emailotp.ErrExpired):
		return denied(ReasonExpired, MethodEmail), nil
	case errors.Is(err, emailotp.ErrTooManyAttempts):
		return denied(ReasonTooManyAttempts, MethodEmail), nil
	case errors.Is(err, emailotp.ErrIncorrectCode):
		result := denied(ReasonIncorrectCode, MethodEmail)
		result.RemainingAttempts = remaining
		return result, nil
	default:
		return nil, err
	}
}

func (s *Service) verifyBackupCode(record *mfarecord.MfaRecord, code string) (*Result, error) {
	ok, err := s.backup.Consume(record.UserID, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A consumed code and a code that never existed look the same
		// at rest, so both come back as incorrect.
		return denied(ReasonIncorrectCode, MethodBackupCode), nil
	}
	return &Result{Verified: true, Method: MethodBackupCode}, nil
}

// Disable turns MFA off after a successful step-up, clearing the enabled
// flag and every outstanding credential except the TOTP secret, which is
// retained for audit.
func (s *Service) Disable(userID string, method Method, code string) (*Result, error) {
	result, err := s.RequireStepUp(userID, method, code)
	if err != nil {
		return nil, err
	}
	if !result.Verified {
		return result, nil
	}

	disabled := false
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.records.UpsertIn(tx, userID, mfarecord.Update{Enabled: &disabled}); err != nil {
			return err
		}
		if err := s.backup.DeleteAllIn(tx, userID); err != nil {
			return err
		}
		return s.email.CancelIn(tx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to disable MFA: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("MFA disabled", zap.String("user_id", userID))
	}
	return result, nil
}
