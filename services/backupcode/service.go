package backupcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/tech-arch1tect/secondfactor/config"
	"github.com/tech-arch1tect/secondfactor/services/logging"
	"github.com/tech-arch1tect/secondfactor/services/mfarecord"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type Service struct {
	config  *config.Config
	db      *gorm.DB
	records *mfarecord.Store
	logger  *logging.Service
}

func NewService(cfg *config.Config, db *gorm.DB, records *mfarecord.Store, logger *logging.Service) *Service {
	return &Service{
		config:  cfg,
		db:      db,
		records: records,
		logger:  logger,
	}
}

// Generate produces the configured number of plaintext recovery codes. It
// touches no storage; pairing the codes with a user happens in StoreCodesIn
// during activation.
func (s *Service) Generate() ([]string, error) {
	count := s.config.BackupCodes.Count
	length := s.config.BackupCodes.Length

	codes := make([]string, count)
	for i := range codes {
		code, err := randomCode(length)
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes[i] = code
	}

	return codes, nil
}

func randomCode(length int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// StoreCodesIn replaces the user's stored codes with bcrypt hashes of the
// given plaintext set, inside the caller's transaction.
func (s *Service) StoreCodesIn(tx *gorm.DB, userID string, codes []string) error {
	if err := tx.Where("user_id = ?", userID).Delete(&BackupCode{}).Error; err != nil {
		return fmt.Errorf("failed to clear old backup codes: %w", err)
	}

	for _, code := range codes {
		hash, err := bcrypt.GenerateFromPassword([]byte(code), s.config.BackupCodes.BcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash backup code: %w", err)
		}
		if err := tx.Create(&BackupCode{UserID: userID, CodeHash: string(hash)}).Error; err != nil {
			return fmt.Errorf("failed to store backup code: %w", err)
		}
	}

	return nil
}

// Consume spends a single recovery code. It returns true only when the code
// matched an unused entry and this call was the one that removed it; the
// rows-affected guard on the delete keeps two racing consumes of the same
// code from both succeeding.
func (s *Service) Consume(userID, code string) (bool, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return false, nil
	}

	record, err := s.records.Get(userID)
	if err != nil {
		if errors.Is(err, mfarecord.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !record.Enabled {
		if s.logger != nil {
			s.logger.Warn("backup code rejected - MFA not enabled",
				zap.String("user_id", userID))
		}
		return false, nil
	}

	consumed := false
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var rows []BackupCode
		if err := tx.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to load backup codes: %w", err)
		}

		for _, row := range rows {
			if bcrypt.CompareHashAndPassword([]byte(row.CodeHash), []byte(normalized)) != nil {
				continue
			}

			result := tx.Where("id = ?", row.ID).Delete(&BackupCode{})
			if result.Error != nil {
				return fmt.Errorf("failed to consume backup code: %w", result.Error)
			}
			consumed = result.RowsAffected == 1
			return nil
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	if s.logger != nil {
		if consumed {
			s.logger.Info("backup code consumed", zap.String("user_id", userID))
		} else {
			s.logger.Warn("backup code rejected", zap.String("user_id", userID))
		}
	}

	return consumed, nil
}

// Remaining reports how many unused codes the user has left.
func (s *Service) Remaining(userID string) (int, error) {
	var count int64
	if err := s.db.Model(&BackupCode{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return int(count), nil
}

// DeleteAllIn removes every stored code for the user inside the caller's
// transaction, used when MFA is disabled.
func (s *Service) DeleteAllIn(tx *gorm.DB, userID string) error {
	if err := tx.Where("user_id = ?", userID).Delete(&BackupCode{}).Error; err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	return nil
}
