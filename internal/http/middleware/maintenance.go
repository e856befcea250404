package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// MaintenanceSwitch holds the runtime maintenance flag.
type MaintenanceSwitch struct {
	enabled atomic.Bool
}

// NewMaintenanceSwitch constructs a switch with the initial state.
func NewMaintenanceSwitch(enabled bool) *MaintenanceSwitch {
	sw := &MaintenanceSwitch{}
	sw.enabled.Store(enabled)
	return sw
}

// Set changes the maintenance flag and reports whether it changed.
func (s *MaintenanceSwitch) Set(enabled bool) bool {
	if s == nil {
		return false
	}
	return s.enabled.Swap(enabled) != enabled
}

// Enabled reports the current flag; a nil switch is never enabled.
func (s *MaintenanceSwitch) Enabled() bool {
	return s != nil && s.enabled.Load()
}

// Maintenance short-circuits every request with 503 while the switch is on.
func Maintenance(sw *MaintenanceSwitch) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sw.Enabled() {
			c.Next()
			return
		}
		c.Data(http.StatusServiceUnavailable, "text/plain; charset=utf-8", []byte("Site is under maintenance"))
		c.Abort()
	}
}
