package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/config"
	"github.com/router-for-me/mclink/internal/http/middleware"
	"github.com/router-for-me/mclink/internal/models"
	"github.com/router-for-me/mclink/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const totpIssuer = "mclink"

// OTPHandler manages the TOTP device of the signed-in staff user.
type OTPHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
}

// NewOTPHandler constructs an OTPHandler.
func NewOTPHandler(db *gorm.DB, jwtCfg config.JWTConfig) *OTPHandler {
	return &OTPHandler{db: db, jwtCfg: jwtCfg}
}

type otpCodeRequest struct {
	Code string `json:"code"`
}

// Status reports whether the user has a confirmed device and whether the
// current access token passed verification.
func (h *OTPHandler) Status(c *gin.Context) {
	user := middleware.CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"totp_enabled": user.TOTPEnabled,
		"otp_verified": middleware.OTPVerified(c),
	})
}

// Prepare generates a pending TOTP secret. It replaces any earlier unconfirmed secret.
func (h *OTPHandler) Prepare(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user.TOTPEnabled {
		c.JSON(http.StatusConflict, gin.H{"detail": "Two-factor device already configured."})
		return
	}
	key, errGen := security.GenerateTOTP(totpIssuer, user.Username)
	if errGen != nil {
		log.WithError(errGen).WithField("user_id", user.ID).Error("admin: generate totp failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "generate totp failed"})
		return
	}
	if !h.save(c, user.ID, map[string]any{"totp_secret": key.Secret, "totp_enabled": false}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"secret": key.Secret, "otpauth_url": key.URL})
}

// Confirm enables the pending device once a valid code is supplied and
// returns a verified access token.
func (h *OTPHandler) Confirm(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user.TOTPEnabled {
		c.JSON(http.StatusConflict, gin.H{"detail": "Two-factor device already configured."})
		return
	}
	if user.TOTPSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No pending two-factor device."})
		return
	}
	if !h.checkCode(c, user) {
		return
	}
	if !h.save(c, user.ID, map[string]any{"totp_enabled": true}) {
		return
	}
	h.issueVerified(c, user)
}

// Verify exchanges a valid code for an access token that satisfies the
// staff two-factor requirement.
func (h *OTPHandler) Verify(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if !user.TOTPEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Two-factor device not configured."})
		return
	}
	if !h.checkCode(c, user) {
		return
	}
	h.issueVerified(c, user)
}

// Disable removes the device after a valid code.
func (h *OTPHandler) Disable(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if !user.TOTPEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Two-factor device not configured."})
		return
	}
	if !h.checkCode(c, user) {
		return
	}
	if !h.save(c, user.ID, map[string]any{"totp_secret": "", "totp_enabled": false}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": false})
}

func (h *OTPHandler) checkCode(c *gin.Context, user *models.User) bool {
	var body otpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid json"})
		return false
	}
	if !security.ValidateTOTP(body.Code, user.TOTPSecret) {
		c.JSON(http.StatusBadRequest, gin.H{"code": []string{"Invalid code."}})
		return false
	}
	return true
}

func (h *OTPHandler) save(c *gin.Context, userID uint64, updates map[string]any) bool {
	updates["updated_at"] = time.Now().UTC()
	errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
	if errUpdate != nil {
		log.WithError(errUpdate).WithField("user_id", userID).Error("admin: update totp failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "update totp failed"})
		return false
	}
	return true
}

func (h *OTPHandler) issueVerified(c *gin.Context, user *models.User) {
	access, errIssue := security.IssueOTPAccessToken(h.jwtCfg.Secret, user.ID, h.jwtCfg.AccessExpiry, time.Now())
	if errIssue != nil {
		log.WithError(errIssue).WithField("user_id", user.ID).Error("admin: issue otp token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": access, "totp_enabled": true})
}
