package enrollment

import (
	"time"
)

type State string

const (
	StateMethodSelection State = "method_selection"
	StateAppSetup        State = "app_setup"
	StateAppVerify       State = "app_verify"
	StateEmailVerify     State = "email_verify"
	StateActivated       State = "activated"
)

// Session is the caller-held enrollment progress. Nothing in it is
// persisted: the TOTP secret lives only here until activation commits it,
// so an abandoned enrollment leaves no record behind.
type Session struct {
	ID         string
	UserID     string
	WantsApp   bool
	WantsEmail bool
	Email      string
	State      State

	TotpSecret      string
	ProvisioningURI string
	AppVerified     bool

	CreatedAt time.Time
}

// Selection is the caller's answer at method selection.
type Selection struct {
	WantsApp   bool
	WantsEmail bool
	Email      string
}

// Activation is handed back exactly once when enrollment completes. The
// plaintext backup codes exist nowhere else; the caller is responsible for
// one-time display.
type Activation struct {
	BackupCodes []string
}
