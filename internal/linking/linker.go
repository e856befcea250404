package linking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/mclink/internal/db"
	"github.com/router-for-me/mclink/internal/identity"
	"github.com/router-for-me/mclink/internal/models"
	"github.com/router-for-me/mclink/internal/tokens"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// MaxNameAttempts is the candidate budget per name resolution.
	MaxNameAttempts = 10
	// maxCommitAttempts bounds commits that fail on a nickname collision.
	maxCommitAttempts = 3
)

var (
	ErrNoAvailableToken    = errors.New("linking: no available token")
	ErrUpstreamUnavailable = errors.New("linking: identity provider unavailable")
	ErrUpstreamError       = errors.New("linking: identity provider error")
	ErrNameExhaustion      = errors.New("linking: no unique nickname available")

	ErrAccountNotFound = errors.New("linking: account not found")
	ErrInvalidUUID     = errors.New("linking: invalid uuid")
	ErrUUIDTaken       = errors.New("linking: uuid already used by another account")
	ErrUUIDAlreadySet  = errors.New("linking: account already has a different uuid")
)

// NameResolver picks an unclaimed nickname.
type NameResolver interface {
	Resolve(ctx context.Context, maxAttempts int, gender, nationality string) (string, bool, error)
}

// Request carries the optional identity filters of a link call.
type Request struct {
	Gender      string
	Nationality string
}

// Result describes a newly linked account.
type Result struct {
	AccountID uint64
	Nickname  string
	UUID      *string
	CreatedAt time.Time
}

// Linker binds game tokens to new Minecraft accounts.
type Linker struct {
	db       *gorm.DB
	resolver NameResolver
	now      func() time.Time
}

// NewLinker constructs a Linker.
func NewLinker(conn *gorm.DB, resolver NameResolver) *Linker {
	return &Linker{db: conn, resolver: resolver, now: time.Now}
}

// Link consumes the user's oldest eligible token and creates an account for it.
// The name lookup runs outside any transaction; only the token consumption and
// the account insert share one. On error nothing is persisted.
func (l *Linker) Link(ctx context.Context, userID uint64, req Request) (Result, error) {
	if l == nil || l.db == nil || l.resolver == nil {
		return Result{}, fmt.Errorf("linking: linker not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := log.WithField("user_id", userID)

	// A lost token race means another request consumed that token, so the
	// loop ends once FindEligible runs out. Only nickname collisions count
	// against maxCommitAttempts.
	collisions := 0
	for {
		token, errFind := tokens.FindEligible(ctx, l.db, userID)
		if errFind != nil {
			return Result{}, fmt.Errorf("linking: select token: %w", errFind)
		}
		if token == nil {
			return Result{}, ErrNoAvailableToken
		}

		nickname, ok, errResolve := l.resolver.Resolve(ctx, MaxNameAttempts, req.Gender, req.Nationality)
		switch {
		case errors.Is(errResolve, identity.ErrUnreachable):
			logger.WithError(errResolve).Warn("linking: identity provider unreachable")
			return Result{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, errResolve)
		case errors.Is(errResolve, identity.ErrProviderStatus):
			logger.WithError(errResolve).Warn("linking: identity provider returned an error")
			return Result{}, fmt.Errorf("%w: %w", ErrUpstreamError, errResolve)
		case errResolve != nil:
			return Result{}, fmt.Errorf("linking: resolve nickname: %w", errResolve)
		case !ok:
			return Result{}, ErrNameExhaustion
		}

		account, errCommit := l.commit(ctx, userID, token.ID, nickname)
		switch {
		case errCommit == nil:
			logger.WithFields(log.Fields{"account_id": account.ID, "token_id": token.ID}).Info("minecraft account linked")
			return Result{
				AccountID: account.ID,
				Nickname:  account.Nickname,
				UUID:      account.UUID,
				CreatedAt: account.CreatedAt,
			}, nil
		case errors.Is(errCommit, tokens.ErrTokenNotEligible):
			logger.WithField("token_id", token.ID).Info("linking: token consumed concurrently, reselecting")
			continue
		case db.IsUniqueViolation(errCommit):
			collisions++
			if collisions >= maxCommitAttempts {
				logger.WithError(errCommit).Warn("linking: nickname collisions exhausted")
				return Result{}, ErrUpstreamError
			}
			logger.WithError(errCommit).WithField("attempt", collisions).Info("linking: nickname collision, retrying")
			continue
		}
		return Result{}, errCommit
	}
}

func (l *Linker) commit(ctx context.Context, userID, tokenID uint64, nickname string) (models.MinecraftAccount, error) {
	account := models.MinecraftAccount{
		Nickname:  nickname,
		OwnerID:   userID,
		TokenID:   tokenID,
		IsActive:  true,
		CreatedAt: l.now().UTC(),
	}
	errTx := db.InTx(ctx, l.db, func(tx *gorm.DB) error {
		if errConsume := tokens.Consume(ctx, tx, tokenID); errConsume != nil {
			return errConsume
		}
		if errCreate := tx.Create(&account).Error; errCreate != nil {
			return fmt.Errorf("linking: create account: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return models.MinecraftAccount{}, errTx
	}
	return account, nil
}

// AttachUUID stores the external id confirmed by the game server.
// Repeating the call with the same uuid is a no-op.
func (l *Linker) AttachUUID(ctx context.Context, accountID uint64, raw string) (models.MinecraftAccount, error) {
	parsed, errParse := uuid.Parse(strings.TrimSpace(raw))
	if errParse != nil {
		return models.MinecraftAccount{}, ErrInvalidUUID
	}
	canonical := parsed.String()

	var account models.MinecraftAccount
	errTx := l.withAccount(ctx, accountID, &account, func(tx *gorm.DB) error {
		if account.UUID != nil {
			if *account.UUID == canonical {
				return nil
			}
			return ErrUUIDAlreadySet
		}
		errUpdate := tx.Model(&account).Update("uuid", canonical).Error
		if db.IsUniqueViolation(errUpdate) {
			return ErrUUIDTaken
		}
		if errUpdate != nil {
			return fmt.Errorf("linking: attach uuid: %w", errUpdate)
		}
		account.UUID = &canonical
		return nil
	})
	if errTx != nil {
		return models.MinecraftAccount{}, errTx
	}
	return account, nil
}

// MarkDead flags the account's external identity as gone.
func (l *Linker) MarkDead(ctx context.Context, accountID uint64) (models.MinecraftAccount, error) {
	var account models.MinecraftAccount
	errTx := l.withAccount(ctx, accountID, &account, func(tx *gorm.DB) error {
		if account.IsDead {
			return nil
		}
		now := l.now().UTC()
		if errUpdate := tx.Model(&account).Updates(map[string]any{
			"is_dead": true,
			"dead_at": now,
		}).Error; errUpdate != nil {
			return fmt.Errorf("linking: mark dead: %w", errUpdate)
		}
		account.IsDead = true
		account.DeadAt = &now
		return nil
	})
	if errTx != nil {
		return models.MinecraftAccount{}, errTx
	}
	return account, nil
}

// SetActive toggles the local enable flag. Disabling records deactivated_at;
// enabling clears it. Setting the current state again is a no-op.
func (l *Linker) SetActive(ctx context.Context, accountID uint64, active bool) (models.MinecraftAccount, error) {
	var account models.MinecraftAccount
	errTx := l.withAccount(ctx, accountID, &account, func(tx *gorm.DB) error {
		if account.IsActive == active {
			return nil
		}
		var deactivatedAt *time.Time
		if !active {
			now := l.now().UTC()
			deactivatedAt = &now
		}
		if errUpdate := tx.Model(&account).Updates(map[string]any{
			"is_active":      active,
			"deactivated_at": deactivatedAt,
		}).Error; errUpdate != nil {
			return fmt.Errorf("linking: set active: %w", errUpdate)
		}
		account.IsActive = active
		account.DeactivatedAt = deactivatedAt
		return nil
	})
	if errTx != nil {
		return models.MinecraftAccount{}, errTx
	}
	return account, nil
}

// withAccount loads and row-locks one account, then runs fn in the same transaction.
func (l *Linker) withAccount(ctx context.Context, accountID uint64, account *models.MinecraftAccount, fn func(tx *gorm.DB) error) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("linking: nil db")
	}
	return db.InTx(ctx, l.db, func(tx *gorm.DB) error {
		errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", accountID).
			First(account).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		if errFind != nil {
			return fmt.Errorf("linking: load account: %w", errFind)
		}
		return fn(tx)
	})
}

// ListAccounts returns the user's accounts, newest first.
func (l *Linker) ListAccounts(ctx context.Context, userID uint64) ([]models.MinecraftAccount, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("linking: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var rows []models.MinecraftAccount
	if errFind := l.db.WithContext(ctx).
		Where("owner_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("linking: list accounts: %w", errFind)
	}
	return rows, nil
}
