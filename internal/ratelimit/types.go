package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter counts requests per key in one-second windows.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error)
}

// Action names a throttled user operation.
type Action string

const (
	ActionIssueToken Action = "issue"
	ActionLink       Action = "link"
	// ActionAuth covers the anonymous register, token and refresh routes.
	ActionAuth Action = "auth"
)
