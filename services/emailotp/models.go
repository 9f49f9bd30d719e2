package emailotp

import (
	"time"
)

// PendingEmailCode is the single outstanding code for a user. Issuing a new
// code replaces the row; verification success, expiry and the attempt cap
// all hard-delete it.
type PendingEmailCode struct {
	ID        uint      `gorm:"primarykey"`
	UserID    string    `gorm:"uniqueIndex;not null"`
	Code      string    `gorm:"not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null"`
	Attempts  int       `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PendingEmailCode) TableName() string {
	return "pending_email_codes"
}
