package mfarecord

import (
	"time"
)

// MfaRecord is the single per-user MFA row. Rows are never soft-deleted;
// disable keeps the row (and the secret, for audit) but clears Enabled and
// EnabledAt.
type MfaRecord struct {
	ID            uint   `gorm:"primarykey"`
	UserID        string `gorm:"uniqueIndex;not null"`
	Enabled       bool   `gorm:"not null;default:false"`
	TotpSecret    string `gorm:"column:totp_secret" json:"-"`
	EmailEnrolled bool   `gorm:"not null;default:false"`
	Email         string
	EnabledAt     *time.Time
	LastUsedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (MfaRecord) TableName() string {
	return "mfa_records"
}

// HasTotp reports whether an app-based secret is configured.
func (r *MfaRecord) HasTotp() bool {
	return r != nil && r.TotpSecret != ""
}

// HasEmail reports whether the email channel is configured.
func (r *MfaRecord) HasEmail() bool {
	return r != nil && r.EmailEnrolled && r.Email != ""
}
