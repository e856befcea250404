package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/mclink/internal/config"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Manager enforces per-action limits, preferring Redis when configured and
// falling back to memory while Redis is unreachable.
type Manager struct {
	limitsMu sync.RWMutex
	limits   map[Action]int

	redisCfg       config.RedisConfig
	nowFn          func() time.Time
	memoryLimiter  Limiter
	newRedisClient RedisClientFactory

	mu           sync.Mutex
	redisLimiter *RedisLimiter
	breakerUntil time.Time
}

// NewManager constructs a Manager from rate limit configuration.
func NewManager(cfg config.RateLimitConfig, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &Manager{
		limits:         limitsFrom(cfg),
		redisCfg:       cfg.Redis,
		nowFn:          nowFn,
		memoryLimiter:  NewMemoryLimiter(),
		newRedisClient: newRedisClient,
	}
}

func limitsFrom(cfg config.RateLimitConfig) map[Action]int {
	return map[Action]int{
		ActionIssueToken: cfg.IssuePerSecond,
		ActionLink:       cfg.LinkPerSecond,
		ActionAuth:       cfg.AuthPerSecond,
	}
}

// Limit returns the configured per-second limit for action (0 means unlimited).
func (m *Manager) Limit(action Action) int {
	if m == nil {
		return 0
	}
	m.limitsMu.RLock()
	defer m.limitsMu.RUnlock()
	return m.limits[action]
}

// SetLimits replaces the per-action limits and reports whether any changed.
// The Redis settings stay as they were at construction.
func (m *Manager) SetLimits(cfg config.RateLimitConfig) bool {
	if m == nil {
		return false
	}
	next := limitsFrom(cfg)
	m.limitsMu.Lock()
	defer m.limitsMu.Unlock()
	changed := false
	for action, limit := range next {
		if m.limits[action] != limit {
			changed = true
		}
	}
	m.limits = next
	return changed
}

// Allow checks one request of userID performing action.
func (m *Manager) Allow(ctx context.Context, action Action, userID uint64) (Result, error) {
	return m.allowKey(ctx, action, KeyFor(action, userID))
}

// AllowIP checks one anonymous request from ip performing action.
func (m *Manager) AllowIP(ctx context.Context, action Action, ip string) (Result, error) {
	return m.allowKey(ctx, action, KeyForIP(action, ip))
}

func (m *Manager) allowKey(ctx context.Context, action Action, key string) (Result, error) {
	if m == nil {
		return Result{Allowed: true}, nil
	}
	limit := m.Limit(action)
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	now := m.nowFn()

	if m.redisCfg.Enabled {
		if result, ok := m.allowRedis(ctx, key, limit, now); ok {
			return result, nil
		}
	}
	return m.memoryLimiter.Allow(ctx, key, limit, now)
}

// Close releases the Redis client, if any.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisLimiter == nil {
		return nil
	}
	errClose := m.redisLimiter.Close()
	m.redisLimiter = nil
	return errClose
}

func (m *Manager) allowRedis(ctx context.Context, key string, limit int, now time.Time) (Result, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.isBreakerActive(now) {
		return Result{}, false
	}
	limiter, errEnsure := m.ensureRedis(ctx)
	if errEnsure != nil {
		m.tripBreaker(errEnsure, now)
		return Result{}, false
	}
	result, errAllow := limiter.Allow(ctx, key, limit, now)
	if errAllow != nil {
		m.tripBreaker(errAllow, now)
		return Result{}, false
	}
	return result, true
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	if m.redisLimiter != nil {
		_ = m.redisLimiter.Close()
		m.redisLimiter = nil
	}
	log.WithError(err).Warn("rate limit: redis unavailable, falling back to memory")
}

func (m *Manager) ensureRedis(ctx context.Context) (*RedisLimiter, error) {
	addr := strings.TrimSpace(m.redisCfg.Addr)
	if addr == "" {
		return nil, errors.New("rate limit redis: missing address")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisLimiter != nil {
		return m.redisLimiter, nil
	}

	db := m.redisCfg.DB
	if db < 0 {
		db = 0
	}
	client := m.newRedisClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(m.redisCfg.Password),
		DB:       db,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redisLimiter = NewRedisLimiter(client, m.redisCfg.Prefix)
	return m.redisLimiter, nil
}
