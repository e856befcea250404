package ratelimit

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/mclink/internal/config"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Unix(1700000000, 0)

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(context.Background(), "link:u:1", 2, now)
		if err != nil || !res.Allowed {
			t.Fatalf("request %d should pass, got %+v err=%v", i, res, err)
		}
	}
	res, _ := limiter.Allow(context.Background(), "link:u:1", 2, now)
	if res.Allowed {
		t.Fatalf("third request in the same second must be rejected")
	}
	if !res.Reset.Equal(time.Unix(1700000001, 0).UTC()) {
		t.Fatalf("unexpected reset %s", res.Reset)
	}

	other, _ := limiter.Allow(context.Background(), "link:u:2", 2, now)
	if !other.Allowed {
		t.Fatalf("other keys must have their own window")
	}

	next, _ := limiter.Allow(context.Background(), "link:u:1", 2, now.Add(time.Second))
	if !next.Allowed || next.Remaining != 1 {
		t.Fatalf("new window should reset the counter, got %+v", next)
	}
	if _, stale := limiter.counters["link:u:2"]; stale {
		t.Fatalf("expected stale window to be swept")
	}
}

func TestManager_LimitsPerActionAndUser(t *testing.T) {
	now := time.Unix(1700000000, 0)
	mgr := NewManager(config.RateLimitConfig{LinkPerSecond: 1, IssuePerSecond: 0}, func() time.Time { return now }, nil)

	if res, _ := mgr.Allow(context.Background(), ActionLink, 7); !res.Allowed {
		t.Fatalf("first link should pass")
	}
	if res, _ := mgr.Allow(context.Background(), ActionLink, 7); res.Allowed {
		t.Fatalf("second link in the same second should be limited")
	}
	if res, _ := mgr.Allow(context.Background(), ActionLink, 8); !res.Allowed {
		t.Fatalf("another user should not share the window")
	}
	for i := 0; i < 5; i++ {
		if res, _ := mgr.Allow(context.Background(), ActionIssueToken, 7); !res.Allowed {
			t.Fatalf("issue limit 0 means unlimited")
		}
	}
}

func TestManager_FallsBackToMemoryWhenRedisDown(t *testing.T) {
	// Reserve a port and close it so the dial fails fast.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	created := 0
	factory := func(opts *redis.Options) *redis.Client {
		created++
		opts.DialTimeout = 100 * time.Millisecond
		opts.MaxRetries = -1
		return redis.NewClient(opts)
	}
	now := time.Unix(1700000000, 0)
	mgr := NewManager(config.RateLimitConfig{
		LinkPerSecond: 1,
		Redis:         config.RedisConfig{Enabled: true, Addr: addr, Prefix: "test"},
	}, func() time.Time { return now }, factory)
	t.Cleanup(func() { _ = mgr.Close() })

	if res, errAllow := mgr.Allow(context.Background(), ActionLink, 1); errAllow != nil || !res.Allowed {
		t.Fatalf("expected memory fallback to allow, got %+v err=%v", res, errAllow)
	}
	if res, _ := mgr.Allow(context.Background(), ActionLink, 1); res.Allowed {
		t.Fatalf("memory fallback should still enforce the limit")
	}
	if created != 1 {
		t.Fatalf("breaker should prevent reconnecting, created %d clients", created)
	}
}

func TestKeyFor(t *testing.T) {
	if got := KeyFor(ActionLink, 42); got != "link:u:42" {
		t.Fatalf("unexpected key %q", got)
	}
	if KeyFor(ActionLink, 0) != "" {
		t.Fatalf("anonymous users have no key")
	}
}

func TestKeyForIP(t *testing.T) {
	if got := KeyForIP(ActionAuth, " 192.0.2.1 "); got != "auth:ip:192.0.2.1" {
		t.Fatalf("unexpected key %q", got)
	}
	if KeyForIP(ActionAuth, "") != "" {
		t.Fatalf("empty address has no key")
	}
}

func TestManager_AllowIPAndSetLimits(t *testing.T) {
	now := time.Unix(1700000000, 0)
	manager := NewManager(config.RateLimitConfig{AuthPerSecond: 1, LinkPerSecond: 1}, func() time.Time { return now }, nil)
	ctx := context.Background()

	if res, _ := manager.AllowIP(ctx, ActionAuth, "192.0.2.1"); !res.Allowed {
		t.Fatalf("first auth request should pass")
	}
	if res, _ := manager.AllowIP(ctx, ActionAuth, "192.0.2.1"); res.Allowed {
		t.Fatalf("second auth request in the same second must be rejected")
	}

	if !manager.SetLimits(config.RateLimitConfig{AuthPerSecond: 3, LinkPerSecond: 1}) {
		t.Fatalf("expected a change to be reported")
	}
	if manager.Limit(ActionAuth) != 3 {
		t.Fatalf("expected new auth limit, got %d", manager.Limit(ActionAuth))
	}
	if res, _ := manager.AllowIP(ctx, ActionAuth, "192.0.2.1"); !res.Allowed || res.Remaining != 1 {
		t.Fatalf("raised limit should admit more requests in the window, got %+v", res)
	}
	if manager.SetLimits(config.RateLimitConfig{AuthPerSecond: 3, LinkPerSecond: 1}) {
		t.Fatalf("identical limits must not report a change")
	}
	var nilManager *Manager
	if nilManager.SetLimits(config.RateLimitConfig{AuthPerSecond: 1}) {
		t.Fatalf("nil manager must ignore limits")
	}
}
