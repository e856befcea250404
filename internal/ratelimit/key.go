package ratelimit

import (
	"fmt"
	"strings"
)

// KeyFor builds the limiter key for one user performing action.
func KeyFor(action Action, userID uint64) string {
	if userID == 0 || action == "" {
		return ""
	}
	return fmt.Sprintf("%s:u:%d", action, userID)
}

// KeyForIP builds the limiter key for one client address performing action.
func KeyForIP(action Action, ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" || action == "" {
		return ""
	}
	return fmt.Sprintf("%s:ip:%s", action, ip)
}
