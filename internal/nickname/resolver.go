package nickname

import (
	"context"
	"fmt"

	"github.com/router-for-me/mclink/internal/identity"
	"github.com/router-for-me/mclink/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// maxBatchSize caps how many candidates are requested per provider call.
const maxBatchSize = 5

// Claimed reports whether a nickname already belongs to an account.
type Claimed interface {
	NicknameTaken(ctx context.Context, nickname string) (bool, error)
}

// GormClaims checks nicknames against the minecraft_accounts table.
type GormClaims struct {
	db *gorm.DB
}

// NewGormClaims constructs a Claimed backed by db.
func NewGormClaims(db *gorm.DB) *GormClaims {
	return &GormClaims{db: db}
}

// NicknameTaken implements Claimed.
func (g *GormClaims) NicknameTaken(ctx context.Context, nickname string) (bool, error) {
	if g == nil || g.db == nil {
		return false, fmt.Errorf("nickname: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var count int64
	if errCount := g.db.WithContext(ctx).
		Model(&models.MinecraftAccount{}).
		Where("nickname = ?", nickname).
		Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("nickname: check claimed: %w", errCount)
	}
	return count > 0, nil
}

// Resolver finds the first unclaimed nickname among provider candidates.
type Resolver struct {
	provider identity.Provider
	claims   Claimed
}

// NewResolver constructs a Resolver.
func NewResolver(provider identity.Provider, claims Claimed) *Resolver {
	return &Resolver{provider: provider, claims: claims}
}

// Resolve requests candidates in batches of min(5, attemptsLeft) and returns
// the first normalized nickname nobody holds. ok is false when maxAttempts
// candidates were spent without a hit. Provider errors are returned as is.
func (r *Resolver) Resolve(ctx context.Context, maxAttempts int, gender, nationality string) (string, bool, error) {
	if r == nil || r.provider == nil || r.claims == nil {
		return "", false, fmt.Errorf("nickname: resolver not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	attemptsLeft := maxAttempts
	for attemptsLeft > 0 {
		batchSize := min(maxBatchSize, attemptsLeft)

		names, err := r.provider.FetchNames(ctx, identity.Query{
			Count:       batchSize,
			Gender:      gender,
			Nationality: nationality,
		})
		if err != nil {
			return "", false, err
		}

		for _, name := range names {
			if name.First == "" && name.Last == "" {
				continue
			}
			candidate := Normalize(name.First, name.Last)
			if candidate == "" {
				continue
			}
			taken, errTaken := r.claims.NicknameTaken(ctx, candidate)
			if errTaken != nil {
				return "", false, errTaken
			}
			if !taken {
				return candidate, true, nil
			}
		}

		attemptsLeft -= batchSize
	}

	log.WithField("max_attempts", maxAttempts).Debug("nickname: no unclaimed candidate found")
	return "", false, nil
}
