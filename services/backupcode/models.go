package backupcode

import (
	"time"
)

// BackupCode is one unused recovery code, stored bcrypt-hashed. Consumption
// hard-deletes the row; there is no soft delete so a consumed code can never
// resurface.
type BackupCode struct {
	ID        uint   `gorm:"primarykey"`
	UserID    string `gorm:"index;not null"`
	CodeHash  string `gorm:"not null" json:"-"`
	CreatedAt time.Time
}

func (BackupCode) TableName() string {
	return "mfa_backup_codes"
}
