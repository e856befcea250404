package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/ratelimit"
	log "github.com/sirupsen/logrus"
)

// RateLimit throttles action per authenticated user; it must run after UserAuth.
func RateLimit(limiter *ratelimit.Manager, action ratelimit.Action) gin.HandlerFunc {
	return throttle(limiter, action, func(ctx context.Context, c *gin.Context) (ratelimit.Result, error) {
		return limiter.Allow(ctx, action, UserID(c))
	})
}

// RateLimitByIP throttles action per client IP for routes without a user.
func RateLimitByIP(limiter *ratelimit.Manager, action ratelimit.Action) gin.HandlerFunc {
	return throttle(limiter, action, func(ctx context.Context, c *gin.Context) (ratelimit.Result, error) {
		return limiter.AllowIP(ctx, action, c.ClientIP())
	})
}

type allowFunc func(ctx context.Context, c *gin.Context) (ratelimit.Result, error)

func throttle(limiter *ratelimit.Manager, action ratelimit.Action, allow allowFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		result, errAllow := allow(c.Request.Context(), c)
		if errAllow != nil {
			log.WithError(errAllow).Warn("rate limit check failed")
			c.Next()
			return
		}
		if limit := limiter.Limit(action); limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			retryAfter := int(time.Until(result.Reset).Seconds() + 0.999)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "Request was throttled."})
			return
		}
		c.Next()
	}
}
