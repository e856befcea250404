package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	dbutil "github.com/router-for-me/mclink/internal/db"
	"github.com/router-for-me/mclink/internal/models"
	"github.com/router-for-me/mclink/internal/security"
	"github.com/router-for-me/mclink/internal/tokens"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const minPasswordLength = 8

// UserHandler manages user records for staff.
type UserHandler struct {
	db     *gorm.DB
	tokens *tokens.Service
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB, service *tokens.Service) *UserHandler {
	return &UserHandler{db: db, tokens: service}
}

func parseID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid id"})
		return 0, false
	}
	return id, true
}

func userResponse(user *models.User) gin.H {
	return gin.H{
		"id":                 user.ID,
		"username":           user.Username,
		"email":              user.Email,
		"first_name":         user.FirstName,
		"last_name":          user.LastName,
		"slots":              user.Slots,
		"preferred_language": user.PreferredLanguage,
		"is_active":          user.IsActive,
		"is_staff":           user.IsStaff,
		"totp_enabled":       user.TOTPEnabled,
		"last_login":         user.LastLogin,
		"date_joined":        user.DateJoined,
	}
}

// List returns users with optional filters.
func (h *UserHandler) List(c *gin.Context) {
	var (
		usernameQ = strings.TrimSpace(c.Query("username"))
		searchQ   = strings.TrimSpace(c.Query("search"))
		staffQ    = strings.TrimSpace(c.Query("is_staff"))
	)

	q := h.db.WithContext(c.Request.Context()).Model(&models.User{})
	if usernameQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+usernameQ+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "username"), pattern)
	}
	if searchQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+searchQ+"%")
		q = q.Where(
			dbutil.CaseInsensitiveLikeExpr(h.db, "username")+" OR "+dbutil.CaseInsensitiveLikeExpr(h.db, "email"),
			pattern,
			pattern,
		)
	}
	if staffQ != "" {
		if staff, errParse := strconv.ParseBool(staffQ); errParse == nil {
			q = q.Where("is_staff = ?", staff)
		}
	}

	var rows []models.User
	if errFind := q.Order("date_joined DESC").Order("id DESC").Find(&rows).Error; errFind != nil {
		log.WithError(errFind).Error("admin: list users failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "list users failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, userResponse(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// Get returns a user by ID together with slot usage.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var user models.User
	if errFind := h.db.WithContext(ctx).First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "query failed"})
		return
	}

	var issued, accounts int64
	if errCount := h.db.WithContext(ctx).Model(&models.GameToken{}).Where("user_id = ?", id).Count(&issued).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "query failed"})
		return
	}
	if errCount := h.db.WithContext(ctx).Model(&models.MinecraftAccount{}).Where("owner_id = ?", id).Count(&accounts).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "query failed"})
		return
	}

	out := userResponse(&user)
	out["tokens_issued"] = issued
	out["accounts"] = accounts
	c.JSON(http.StatusOK, out)
}

// updateUserRequest defines the request body for user updates.
type updateUserRequest struct {
	Email             *string `json:"email"`
	FirstName         *string `json:"first_name"`
	LastName          *string `json:"last_name"`
	Slots             *int    `json:"slots"`
	PreferredLanguage *string `json:"preferred_language"`
	IsStaff           *bool   `json:"is_staff"`
}

// Update modifies a user. Lowering slots below the issued count only blocks further issuance.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body updateUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid json"})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if body.Email != nil {
		updates["email"] = strings.TrimSpace(*body.Email)
	}
	if body.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*body.FirstName)
	}
	if body.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*body.LastName)
	}
	if body.Slots != nil {
		if *body.Slots < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"slots": []string{"Ensure this value is greater than or equal to 1."}})
			return
		}
		updates["slots"] = *body.Slots
	}
	if body.PreferredLanguage != nil {
		lang := strings.ToLower(strings.TrimSpace(*body.PreferredLanguage))
		if lang != models.LanguageEnglish && lang != models.LanguageUkrainian {
			c.JSON(http.StatusBadRequest, gin.H{"preferred_language": []string{"Unsupported language."}})
			return
		}
		updates["preferred_language"] = lang
	}
	if body.IsStaff != nil {
		updates["is_staff"] = *body.IsStaff
	}

	h.applyUpdates(c, id, updates)
}

// Disable deactivates a user account.
func (h *UserHandler) Disable(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	h.applyUpdates(c, id, map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
}

// Enable reactivates a user account.
func (h *UserHandler) Enable(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	h.applyUpdates(c, id, map[string]any{"is_active": true, "updated_at": time.Now().UTC()})
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	Password string `json:"password"`
}

// ChangePassword updates a user's password.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid json"})
		return
	}
	if len(body.Password) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"password": []string{"This password is too short. It must contain at least 8 characters."}})
		return
	}
	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "hash password failed"})
		return
	}
	h.applyUpdates(c, id, map[string]any{"password": hash, "updated_at": time.Now().UTC()})
}

// Tokens lists every game token of a user.
func (h *UserHandler) Tokens(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rows, errList := h.tokens.List(c.Request.Context(), id)
	if errList != nil {
		log.WithError(errList).WithField("user_id", id).Error("admin: list tokens failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "list tokens failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		item := gin.H{
			"id":           rows[i].ID,
			"active":       rows[i].IsActive,
			"generated_at": rows[i].GeneratedAt,
			"account_id":   nil,
		}
		if rows[i].MinecraftAccount != nil {
			item["account_id"] = rows[i].MinecraftAccount.ID
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"tokens": out})
}

func (h *UserHandler) applyUpdates(c *gin.Context, id uint64, updates map[string]any) {
	res := h.db.WithContext(c.Request.Context()).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		log.WithError(res.Error).WithField("user_id", id).Error("admin: update user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
