package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/models"
)

// Gin context keys set by the middlewares in this package.
const (
	ContextUserID      = "userID"
	ContextUser        = "user"
	ContextLanguage    = "language"
	ContextOTPVerified = "otpVerified"
)

// Cookie names carrying the JWT pair.
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// UserID returns the authenticated user id, or 0.
func UserID(c *gin.Context) uint64 {
	if c == nil {
		return 0
	}
	if v, ok := c.Get(ContextUserID); ok {
		if id, okID := v.(uint64); okID {
			return id
		}
	}
	return 0
}

// CurrentUser returns the authenticated user loaded by UserAuth, or nil.
func CurrentUser(c *gin.Context) *models.User {
	if c == nil {
		return nil
	}
	if v, ok := c.Get(ContextUser); ok {
		if user, okUser := v.(*models.User); okUser {
			return user
		}
	}
	return nil
}

// OTPVerified reports whether the access token passed a TOTP check.
func OTPVerified(c *gin.Context) bool {
	return c != nil && c.GetBool(ContextOTPVerified)
}

// Language returns the negotiated language code, defaulting to English.
func Language(c *gin.Context) string {
	if c != nil {
		if v := c.GetString(ContextLanguage); v != "" {
			return v
		}
	}
	return models.LanguageEnglish
}
