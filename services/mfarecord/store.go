package mfarecord

import (
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/secondfactor/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("MFA record not found")

// Store owns all reads and writes of MfaRecord rows. Every mutation runs in
// a per-row transaction so concurrent operations on the same user serialize
// through the database rather than through process memory.
type Store struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewStore(db *gorm.DB, logger *logging.Service) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Update carries the fields an Upsert should merge. Nil pointers leave the
// stored value untouched. EnabledAt is managed by the store: set when
// Enabled transitions to true, cleared when it transitions to false.
type Update struct {
	Enabled       *bool
	TotpSecret    *string
	EmailEnrolled *bool
	Email         *string
}

func (s *Store) Get(userID string) (*MfaRecord, error) {
	return s.get(s.db, userID)
}

func (s *Store) get(tx *gorm.DB, userID string) (*MfaRecord, error) {
	var record MfaRecord
	if err := tx.Where("user_id = ?", userID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		if s.logger != nil {
			s.logger.Error("failed to load MFA record",
				zap.Error(err),
				zap.String("user_id", userID))
		}
		return nil, fmt.Errorf("failed to load MFA record: %w", err)
	}
	return &record, nil
}

func (s *Store) Upsert(userID string, update Update) (*MfaRecord, error) {
	var result *MfaRecord

	err := s.db.Transaction(func(tx *gorm.DB) error {
		record, err := s.get(tx, userID)
		if errors.Is(err, ErrNotFound) {
			record = &MfaRecord{UserID: userID}
		} else if err != nil {
			return err
		}

		s.apply(record, update)

		if err := tx.Save(record).Error; err != nil {
			if s.logger != nil {
				s.logger.Error("failed to save MFA record",
					zap.Error(err),
					zap.String("user_id", userID))
			}
			return fmt.Errorf("failed to save MFA record: %w", err)
		}

		result = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("MFA record updated",
			zap.String("user_id", userID),
			zap.Bool("enabled", result.Enabled))
	}

	return result, nil
}

// UpsertIn is Upsert running inside a caller-supplied transaction, for
// writes that must commit atomically with other tables (activation writes
// the record and the backup codes together).
func (s *Store) UpsertIn(tx *gorm.DB, userID string, update Update) (*MfaRecord, error) {
	record, err := s.get(tx, userID)
	if errors.Is(err, ErrNotFound) {
		record = &MfaRecord{UserID: userID}
	} else if err != nil {
		return nil, err
	}

	s.apply(record, update)

	if err := tx.Save(record).Error; err != nil {
		return nil, fmt.Errorf("failed to save MFA record: %w", err)
	}

	return record, nil
}

func (s *Store) apply(record *MfaRecord, update Update) {
	if update.Enabled != nil && *update.Enabled != record.Enabled {
		if *update.Enabled {
			now := time.Now()
			record.EnabledAt = &now
		} else {
			record.EnabledAt = nil
		}
		record.Enabled = *update.Enabled
	}
	if update.TotpSecret != nil {
		record.TotpSecret = *update.TotpSecret
	}
	if update.EmailEnrolled != nil {
		record.EmailEnrolled = *update.EmailEnrolled
	}
	if update.Email != nil {
		record.Email = *update.Email
	}
}

// TouchLastUsed stamps LastUsedAt after any successful verification so
// anomaly auditing can see when the second factor last proved out.
func (s *Store) TouchLastUsed(userID string) error {
	now := time.Now()
	result := s.db.Model(&MfaRecord{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"last_used_at": now, "updated_at": now})
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to touch MFA record",
				zap.Error(result.Error),
				zap.String("user_id", userID))
		}
		return fmt.Errorf("failed to touch MFA record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Delete(userID string) error {
	result := s.db.Where("user_id = ?", userID).Delete(&MfaRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete MFA record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	if s.logger != nil {
		s.logger.Info("MFA record deleted", zap.String("user_id", userID))
	}
	return nil
}

// DB exposes the underlying handle for services that need to compose a
// cross-table transaction around store writes.
func (s *Store) DB() *gorm.DB {
	return s.db
}
