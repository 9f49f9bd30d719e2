package emailotp

// Notifier delivers the issued code. Retries, backoff and timeouts are the
// implementation's concern; a failed Send never invalidates the pending
// code, so the caller can ask for a resend without a fresh code being
// forced on them.
type Notifier interface {
	Send(destination, subject, body string) error
}
