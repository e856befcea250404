package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StaffOnly rejects authenticated users without the staff flag. With requireOTP
// set, the access token must also carry a passed TOTP check. It must run after UserAuth.
func StaffOnly(requireOTP bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
			return
		}
		if !user.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})
			return
		}
		if requireOTP && !OTPVerified(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Two-factor verification required.", "otp_required": true})
			return
		}
		c.Next()
	}
}
