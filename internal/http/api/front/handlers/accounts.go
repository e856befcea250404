package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/config"
	"github.com/router-for-me/mclink/internal/db"
	"github.com/router-for-me/mclink/internal/http/middleware"
	"github.com/router-for-me/mclink/internal/models"
	"github.com/router-for-me/mclink/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const maxUsernameLength = 150

// AccountHandler handles registration and the cookie JWT flow.
type AccountHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
	cookie config.CookieConfig
	now    func() time.Time
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(db *gorm.DB, jwtCfg config.JWTConfig, cookie config.CookieConfig) *AccountHandler {
	return &AccountHandler{db: db, jwtCfg: jwtCfg, cookie: cookie, now: time.Now}
}

// registerRequest defines the request body for registration.
type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// credentialsRequest defines the request body for obtaining a token pair.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// meResponse is the public view of the signed-in user.
func meResponse(user *models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
	}
}

// Register creates a user with one token slot.
func (h *AccountHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid json"})
		return
	}

	body.Username = strings.TrimSpace(body.Username)
	body.Email = strings.TrimSpace(body.Email)
	fieldErrors := gin.H{}
	switch {
	case body.Username == "":
		fieldErrors["username"] = []string{"This field may not be blank."}
	case len(body.Username) > maxUsernameLength:
		fieldErrors["username"] = []string{"Ensure this field has no more than 150 characters."}
	}
	if body.Email != "" {
		if _, errAddr := mail.ParseAddress(body.Email); errAddr != nil {
			fieldErrors["email"] = []string{"Enter a valid email address."}
		}
	}
	hashed, errHash := security.HashPassword(body.Password)
	if errors.Is(errHash, security.ErrPasswordTooShort) {
		fieldErrors["password"] = []string{"Ensure this field has at least 8 characters."}
	} else if errHash != nil {
		log.WithError(errHash).Error("register: hash password failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "register failed"})
		return
	}
	if len(fieldErrors) > 0 {
		c.JSON(http.StatusBadRequest, fieldErrors)
		return
	}

	user := models.User{
		Username:          body.Username,
		Email:             body.Email,
		FirstName:         strings.TrimSpace(body.FirstName),
		LastName:          strings.TrimSpace(body.LastName),
		Password:          hashed,
		Slots:             1,
		PreferredLanguage: middleware.Language(c),
		IsActive:          true,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			c.JSON(http.StatusBadRequest, gin.H{"username": []string{"A user with that username already exists."}})
			return
		}
		log.WithError(errCreate).Error("register: create user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "register failed"})
		return
	}

	log.WithField("user_id", user.ID).Info("user registered")
	c.JSON(http.StatusCreated, meResponse(&user))
}

// Token authenticates credentials and issues the JWT pair as body and cookies.
func (h *AccountHandler) Token(c *gin.Context) {
	var body credentialsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid json"})
		return
	}

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).
		Where("username = ?", strings.TrimSpace(body.Username)).
		First(&user).Error
	if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
		log.WithError(errFind).Error("token: load user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "login failed"})
		return
	}
	if errFind != nil || !user.IsActive || !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "No active account found with the given credentials"})
		return
	}

	now := h.now().UTC()
	pair, errIssue := security.IssueTokenPair(h.jwtCfg.Secret, user.ID, h.jwtCfg.AccessExpiry, h.jwtCfg.RefreshExpiry, now)
	if errIssue != nil {
		log.WithError(errIssue).Error("token: issue pair failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "login failed"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&user).
		Update("last_login", now).Error; errUpdate != nil {
		log.WithError(errUpdate).Warn("token: update last_login failed")
	}

	h.setCookie(c, middleware.AccessCookieName, pair.Access, h.jwtCfg.AccessExpiry)
	h.setCookie(c, middleware.RefreshCookieName, pair.Refresh, h.jwtCfg.RefreshExpiry)
	c.JSON(http.StatusOK, pair)
}

// Refresh issues a new access token from the refresh token in the body or cookie.
func (h *AccountHandler) Refresh(c *gin.Context) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	_ = c.ShouldBindJSON(&body)
	raw := strings.TrimSpace(body.Refresh)
	if raw == "" {
		if cookie, errCookie := c.Cookie(middleware.RefreshCookieName); errCookie == nil {
			raw = strings.TrimSpace(cookie)
		}
	}
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Refresh token not provided."})
		return
	}

	claims, errParse := security.ParseUserToken(h.jwtCfg.Secret, raw, security.TokenTypeRefresh)
	if errParse != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired"})
		return
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil || !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired"})
		return
	}

	access, errIssue := security.IssueUserToken(h.jwtCfg.Secret, user.ID, security.TokenTypeAccess, h.jwtCfg.AccessExpiry, h.now().UTC())
	if errIssue != nil {
		log.WithError(errIssue).Error("refresh: issue access failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "refresh failed"})
		return
	}
	h.setCookie(c, middleware.AccessCookieName, access, h.jwtCfg.AccessExpiry)
	c.JSON(http.StatusOK, gin.H{"access": access})
}

// Verify reports whether a token of any type is valid.
func (h *AccountHandler) Verify(c *gin.Context) {
	var body struct {
		Token string `json:"token"`
	}
	_ = c.ShouldBindJSON(&body)
	raw := strings.TrimSpace(body.Token)
	if raw == "" {
		if cookie, errCookie := c.Cookie(middleware.AccessCookieName); errCookie == nil {
			raw = strings.TrimSpace(cookie)
		}
	}
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"token": []string{"This field is required."}})
		return
	}
	if _, errParse := security.ParseUserToken(h.jwtCfg.Secret, raw, ""); errParse != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired"})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// Logout clears both auth cookies.
func (h *AccountHandler) Logout(c *gin.Context) {
	h.setCookie(c, middleware.AccessCookieName, "", -time.Second)
	h.setCookie(c, middleware.RefreshCookieName, "", -time.Second)
	c.JSON(http.StatusOK, gin.H{"detail": "Logged out"})
}

// Me returns the signed-in user.
func (h *AccountHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, meResponse(user))
}

// setCookie writes an HttpOnly auth cookie; a negative ttl deletes it.
func (h *AccountHandler) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	c.SetSameSite(h.cookie.SameSiteMode())
	c.SetCookie(name, value, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}
