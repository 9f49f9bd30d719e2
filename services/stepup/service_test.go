package stepup

import (
	"testing"
	"time"

	pquerna "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/secondfactor/services/backupcode"
	"github.com/tech-arch1tect/secondfactor/services/emailotp"
	"github.com/tech-arch1tect/secondfactor/services/enrollment"
	"github.com/tech-arch1tect/secondfactor/services/mfarecord"
	"github.com/tech-arch1tect/secondfactor/services/totp"
	"github.com/tech-arch1tect/secondfactor/testutils"
	"gorm.io/gorm"
)

type fixture struct {
	gate     *Service
	enroll   *enrollment.Service
	records  *mfarecord.Store
	backup   *backupcode.Service
	notifier *testutils.RecordingNotifier
	db       *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testutils.GetTestConfig()
	db := testutils.SetupTestDB(t,
		&mfarecord.MfaRecord{},
		&backupcode.BackupCode{},
		&emailotp.PendingEmailCode{},
	)

	notifier := &testutils.RecordingNotifier{}
	records := mfarecord.NewStore(db, nil)
	totpSvc := totp.NewService(cfg, nil)
	emailSvc := emailotp.NewService(cfg, db, notifier, nil)
	backupSvc := backupcode.NewService(cfg, db, records, nil)

	return &fixture{
		gate:     NewService(cfg, db, totpSvc, emailSvc, backupSvc, records, nil),
		enroll:   enrollment.NewService(cfg, db, totpSvc, emailSvc, backupSvc, records, nil),
		records:  records,
		backup:   backupSvc,
		notifier: notifier,
		db:       db,
	}
}

func appCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := pquerna.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

func issuedCode(t *testing.T, db *gorm.DB, userID string) string {
	t.Helper()
	var pending emailotp.PendingEmailCode
	require.NoError(t, db.Where("user_id = ?", userID).First(&pending).Error)
	return pending.Code
}

// enrollTotpOnly runs a real enrollment so the gate sees the same records
// production would.
func enrollTotpOnly(t *testing.T, f *fixture, userID string) (secret string, backupCodes []string) {
	t.Helper()
	sess, err := f.enroll.Begin(userID, enrollment.Selection{WantsApp: true})
	require.NoError(t, err)
	activation, err := f.enroll.ConfirmApp(sess, appCode(t, sess.TotpSecret))
	require.NoError(t, err)
	return sess.TotpSecret, activation.BackupCodes
}

func enrollEmailOnly(t *testing.T, f *fixture, userID, email string) {
	t.Helper()
	sess, err := f.enroll.Begin(userID, enrollment.Selection{WantsEmail: true, Email: email})
	require.NoError(t, err)
	_, _, err = f.enroll.ConfirmEmail(sess, issuedCode(t, f.db, userID))
	require.NoError(t, err)
}

func TestService_RequireStepUp_NotConfigured(t *testing.T) {
	f := newFixture(t)

	t.Run("no record at all", func(t *testing.T) {
		result, err := f.gate.RequireStepUp("nobody", MethodTOTP, "123456")
		require.NoError(t, err)
		assert.False(t, result.Verified)
		assert.Equal(t, ReasonNotConfigured, result.Reason)
	})

	t.Run("record disabled", func(t *testing.T) {
		enabled := false
		secret := "JBSWY3DPEHPK3PXP"
		_, err := f.records.Upsert("user-1", mfarecord.Update{Enabled: &enabled, TotpSecret: &secret})
		require.NoError(t, err)

		result, err := f.gate.RequireStepUp("user-1", MethodTOTP, appCode(t, secret))
		require.NoError(t, err)
		assert.False(t, result.Verified)
		assert.Equal(t, ReasonNotConfigured, result.Reason)
	})
}

func TestService_RequireStepUp_TOTP(t *testing.T) {
	f := newFixture(t)
	secret, _ := enrollTotpOnly(t, f, "user-1")

	t.Run("correct code verifies and touches the record", func(t *testing.T) {
		result, err := f.gate.RequireStepUp("user-1", MethodTOTP, appCode(t, secret))
		require.NoError(t, err)
		assert.True(t, result.Verified)
		assert.Equal(t, MethodTOTP, result.Method)
		assert.NotEmpty(t, result.Token)

		record, err := f.records.Get("user-1")
		require.NoError(t, err)
		assert.NotNil(t, record.LastUsedAt)
	})

	t.Run("auto-selects the only primary method", func(t *testing.T) {
		result, err := f.gate.RequireStepUp("user-1", "", appCode(t, secret))
		require.NoError(t, err)
		assert.True(t, result.Verified)
		assert.Equal(t, MethodTOTP, result.Method)
	})

	t.Run("wrong code denied", func(t *testing.T) {
		result, err := f.gate.RequireStepUp("user-1", MethodTOTP, "000000")
		require.NoError(t, err)
		assert.False(t, result.Verified)
		assert.Equal(t, ReasonIncorrectCode, result.Reason)
		assert.Empty(t, result.Token)
	})

	t.Run("malformed code denied as invalid input", func(t *testing.T) {
		result, err := f.gate.RequireStepUp("user-1", MethodTOTP, "12ab")
		require.NoError(t, err)
		assert.False(t, result.Verified)
		assert.Equal(t, ReasonInvalidInput, result.Reason)
	})

	t.Run("email method unavailable for totp-only user", func(t *testing.T) {
		result, err := f.gate.RequireStepUp("user-1", MethodEmail, "123456")
		require.NoError(t, err)
		assert.False(t, result.Verified)
		assert.Equal(t, ReasonMethodUnavailable, result.Reason)
	})
}

func TestService_RequireStepUp_Email(t *testing.T) {
	f := newFixture(t)
	enrollEmailOnly(t, f, "user-1", "user@example.com")

	t.Run("no pending code yet", func(t *testing.T) {
		result, err := f.gate.RequireStepUp("user-1", MethodEmail, "123456")
		require.NoError(t, err)
		assert.False(t, result.Verified)
		assert.Equal(t, ReasonNoPendingCode, result.Reason)
	})

	t.Run("issue then verify", func(t *testing.T) {
		require.NoError(t, f.gate.SendEmailCode("user-1"))

		result, err := f.gate.RequireStepUp("user-1", MethodEmail, issuedCode(t, f.db, "user-1"))
		require.NoError(t, err)
		assert.True(t, result.Verified)
		assert.NotEmpty(t, result.Token)
	})

	t.Run("wrong guess reports remaining attempts", func(t *testing.T) {
		require.NoError(t, f.gate.SendEmailCode("user-1"))
		code := issuedCode(t, f.db, "user-1")
		wrong := "000000"
		if wrong == code {
			wrong = "000001"
		}

		result, err := f.gate.RequireStepUp("user-1", MethodEmail, wrong)
		require.NoError(t, err)
		assert.False(t, result.Verified)
		assert.Equal(t, ReasonIncorrectCode, result.Reason)
		assert.Equal(t, 2, result.RemainingAttempts)
	})

	t.Run("expired code", func(t *testing.T) {
		require.NoError(t, f.gate.SendEmailCode("user-1"))
		code := issuedCode(t, f.db, "user-1")
		require.NoError(t, f.db.Model(&emailotp.PendingEmailCode{}).
			Where("user_id = ?", "user-1").
			Update("expires_at", time.Now().Add(-time.Minute)).Error)

		result, err := f.gate.RequireStepUp("user-1", MethodEmail, code)
		require.NoError(t, err)
		assert.False(t, result.Verified)
		assert.Equal(t, ReasonExpired, result.Reason)
	})
}

func TestService_RequireStepUp_BackupCode(t *testing.T) {
	f := newFixture(t)
	_, codes := enrollTotpOnly(t, f, "user-1")

	t.Run("valid code verifies once", func(t *testing.T) {
		result, err := f.gate.RequireStepUp("user-1", MethodBackupCode, codes[0])
		require.NoError(t, err)
		assert.True(t, result.Verified)

		result, err = f.gate.RequireStepUp("user-1", MethodBackupCode, codes[0])
		require.NoError(t, err)
		assert.False(t, result.Verified)
		assert.Equal(t, ReasonIncorrectCode, result.Reason)
	})
}

func TestService_Methods(t *testing.T) {
	f := newFixture(t)

	t.Run("unconfigured user has none", func(t *testing.T) {
		methods, err := f.gate.Methods("nobody")
		require.NoError(t, err)
		assert.Empty(t, methods)
	})

	t.Run("totp enrollment yields totp and backup codes", func(t *testing.T) {
		enrollTotpOnly(t, f, "user-1")
		methods, err := f.gate.Methods("user-1")
		require.NoError(t, err)
		assert.Equal(t, []Method{MethodTOTP, MethodBackupCode}, methods)
	})
}

func TestService_Disable(t *testing.T) {
	f := newFixture(t)
	secret, _ := enrollTotpOnly(t, f, "user-1")

	t.Run("denied step-up leaves MFA on", func(t *testing.T) {
		result, err := f.gate.Disable("user-1", MethodTOTP, "000000")
		require.NoError(t, err)
		assert.False(t, result.Verified)

		record, err := f.records.Get("user-1")
		require.NoError(t, err)
		assert.True(t, record.Enabled)
	})

	t.Run("verified step-up disables and clears credentials", func(t *testing.T) {
		result, err := f.gate.Disable("user-1", MethodTOTP, appCode(t, secret))
		require.NoError(t, err)
		assert.True(t, result.Verified)

		record, err := f.records.Get("user-1")
		require.NoError(t, err)
		assert.False(t, record.Enabled)
		assert.Nil(t, record.EnabledAt)
		assert.Equal(t, secret, record.TotpSecret, "secret retained for audit")

		remaining, err := f.backup.Remaining("user-1")
		require.NoError(t, err)
		assert.Equal(t, 0, remaining)
	})
}

func TestService_ProofToken(t *testing.T) {
	f := newFixture(t)
	secret, _ := enrollTotpOnly(t, f, "user-1")

	result, err := f.gate.RequireStepUp("user-1", MethodTOTP, appCode(t, secret))
	require.NoError(t, err)
	require.True(t, result.Verified)
	require.NotEmpty(t, result.Token)

	t.Run("round trip", func(t *testing.T) {
		userID, err := f.gate.VerifyProofToken(result.Token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := f.gate.VerifyProofToken("not.a.token")
		testutils.AssertErrorType(t, ErrInvalidProofToken, err)
	})

	t.Run("disabled when no secret configured", func(t *testing.T) {
		cfg := testutils.GetTestConfig()
		cfg.StepUp.TokenSecret = ""
		gate := NewService(cfg, f.db, nil, nil, nil, f.records, nil)

		_, err := gate.VerifyProofToken(result.Token)
		testutils.AssertErrorType(t, ErrProofTokenDisabled, err)
	})
}
