package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/security"
)

// ServerKeyHeader carries the shared secret on server-to-server calls.
const ServerKeyHeader = "X-Server-Key"

// ServerKeyAuth admits requests whose X-Server-Key matches key.
// A missing header is 401; a wrong key, or no key configured, is 403.
func ServerKeyAuth(key *security.ServerKey) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(ServerKeyHeader)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Server key required."})
			return
		}
		if !key.Authorize(provided) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})
			return
		}
		c.Next()
	}
}
