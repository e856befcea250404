package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/mclink/internal/db"
	"github.com/router-for-me/mclink/internal/models"
	"github.com/router-for-me/mclink/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// issueAttempts is the first try plus one retry on a transient conflict.
	issueAttempts    = 2
	maxValueAttempts = 5
)

// Service issues and manages game tokens under the per-user slot cap.
type Service struct {
	db       *gorm.DB
	locks    userLocks
	now      func() time.Time
	newValue func() (string, error)
}

// NewService constructs a token service.
func NewService(conn *gorm.DB) *Service {
	return &Service{
		db:       conn,
		now:      time.Now,
		newValue: security.GenerateTokenValue,
	}
}

// Issue creates a new token for userID if the lifetime slot cap allows it.
// Every token ever created counts toward the cap, consumed or not.
func (s *Service) Issue(ctx context.Context, userID uint64) (models.GameToken, error) {
	if s == nil || s.db == nil {
		return models.GameToken{}, fmt.Errorf("tokens: nil db")
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	var issued models.GameToken
	errTx := db.InTxRetry(ctx, s.db, issueAttempts, func(tx *gorm.DB) error {
		var user models.User
		errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "slots").
			Where("id = ?", userID).
			First(&user).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		if errFind != nil {
			return fmt.Errorf("tokens: load user: %w", errFind)
		}

		var current int64
		if errCount := tx.Model(&models.GameToken{}).
			Where("user_id = ?", userID).
			Count(&current).Error; errCount != nil {
			return fmt.Errorf("tokens: count tokens: %w", errCount)
		}
		if current >= int64(user.Slots) {
			return &QuotaExceededError{Limit: user.Slots, Current: current}
		}

		token, errCreate := s.createToken(tx, userID)
		if errCreate != nil {
			return errCreate
		}
		issued = token
		return nil
	})
	if errTx != nil {
		return models.GameToken{}, errTx
	}

	log.WithFields(log.Fields{"user_id": userID, "token_id": issued.ID}).Info("game token issued")
	return issued, nil
}

// createToken inserts a token with a fresh random value, redrawing on a value collision.
// Each insert runs in a savepoint so a collision does not abort the outer transaction.
func (s *Service) createToken(tx *gorm.DB, userID uint64) (models.GameToken, error) {
	for attempt := 0; attempt < maxValueAttempts; attempt++ {
		value, errValue := s.newValue()
		if errValue != nil {
			return models.GameToken{}, fmt.Errorf("tokens: generate value: %w", errValue)
		}
		token := models.GameToken{
			UserID:      userID,
			Value:       value,
			IsActive:    true,
			GeneratedAt: s.now().UTC(),
		}
		errCreate := tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(&token).Error
		})
		if errCreate == nil {
			return token, nil
		}
		if !db.IsUniqueViolation(errCreate) {
			return models.GameToken{}, fmt.Errorf("tokens: create token: %w", errCreate)
		}
		log.WithField("attempt", attempt+1).Warn("tokens: token value collision, regenerating")
	}
	return models.GameToken{}, ErrTokenValueExhausted
}

// List returns the user's tokens newest first, with any bound account.
func (s *Service) List(ctx context.Context, userID uint64) ([]models.GameToken, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("tokens: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var rows []models.GameToken
	if errFind := s.db.WithContext(ctx).
		Preload("MinecraftAccount").
		Where("user_id = ?", userID).
		Order("generated_at DESC").
		Order("id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("tokens: list: %w", errFind)
	}
	return rows, nil
}

// Revoke deactivates a token that has not been bound to an account.
// Revoking an already inactive unbound token is a no-op.
func (s *Service) Revoke(ctx context.Context, tokenID uint64) (models.GameToken, error) {
	if s == nil || s.db == nil {
		return models.GameToken{}, fmt.Errorf("tokens: nil db")
	}
	var token models.GameToken
	errTx := db.InTx(ctx, s.db, func(tx *gorm.DB) error {
		errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", tokenID).
			First(&token).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ErrTokenNotFound
		}
		if errFind != nil {
			return fmt.Errorf("tokens: load token: %w", errFind)
		}

		var bound int64
		if errCount := tx.Model(&models.MinecraftAccount{}).
			Where("token_id = ?", tokenID).
			Count(&bound).Error; errCount != nil {
			return fmt.Errorf("tokens: check binding: %w", errCount)
		}
		if bound > 0 {
			return ErrTokenBound
		}
		if !token.IsActive {
			return nil
		}
		if errUpdate := tx.Model(&token).Update("is_active", false).Error; errUpdate != nil {
			return fmt.Errorf("tokens: revoke: %w", errUpdate)
		}
		token.IsActive = false
		return nil
	})
	if errTx != nil {
		return models.GameToken{}, errTx
	}
	return token, nil
}

// FindEligible returns the user's oldest active token with no account bound,
// or nil when there is none.
func FindEligible(ctx context.Context, conn *gorm.DB, userID uint64) (*models.GameToken, error) {
	if conn == nil {
		return nil, fmt.Errorf("tokens: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var token models.GameToken
	errFind := conn.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Where("NOT EXISTS (SELECT 1 FROM minecraft_accounts WHERE minecraft_accounts.token_id = game_tokens.id)").
		Order("generated_at ASC").
		Order("id ASC").
		First(&token).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, fmt.Errorf("tokens: find eligible: %w", errFind)
	}
	return &token, nil
}

// Consume marks an active token as used. It must run inside the transaction
// that creates the token's account; ErrTokenNotEligible means another
// transaction consumed it first.
func Consume(ctx context.Context, tx *gorm.DB, tokenID uint64) error {
	if tx == nil {
		return fmt.Errorf("tokens: nil tx")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	res := tx.WithContext(ctx).
		Model(&models.GameToken{}).
		Where("id = ? AND is_active = ?", tokenID, true).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("tokens: consume: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTokenNotEligible
	}
	return nil
}
