package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	dbutil "github.com/router-for-me/mclink/internal/db"
	"github.com/router-for-me/mclink/internal/linking"
	"github.com/router-for-me/mclink/internal/models"
	"github.com/router-for-me/mclink/internal/tokens"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AccountHandler lets staff inspect and toggle linked game accounts.
type AccountHandler struct {
	db     *gorm.DB
	linker *linking.Linker
	tokens *tokens.Service
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(db *gorm.DB, linker *linking.Linker, service *tokens.Service) *AccountHandler {
	return &AccountHandler{db: db, linker: linker, tokens: service}
}

func accountResponse(account *models.MinecraftAccount) gin.H {
	return gin.H{
		"id":             account.ID,
		"nickname":       account.Nickname,
		"uuid":           account.UUID,
		"owner_id":       account.OwnerID,
		"token_id":       account.TokenID,
		"is_active":      account.IsActive,
		"deactivated_at": account.DeactivatedAt,
		"is_dead":        account.IsDead,
		"dead_at":        account.DeadAt,
		"created_at":     account.CreatedAt,
	}
}

// List returns accounts filtered by owner, nickname or dead flag.
func (h *AccountHandler) List(c *gin.Context) {
	var (
		ownerQ    = strings.TrimSpace(c.Query("owner_id"))
		nicknameQ = strings.TrimSpace(c.Query("nickname"))
		deadQ     = strings.TrimSpace(c.Query("is_dead"))
	)

	q := h.db.WithContext(c.Request.Context()).Model(&models.MinecraftAccount{})
	if ownerQ != "" {
		if ownerID, errParse := strconv.ParseUint(ownerQ, 10, 64); errParse == nil {
			q = q.Where("owner_id = ?", ownerID)
		}
	}
	if nicknameQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+nicknameQ+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "nickname"), pattern)
	}
	if deadQ != "" {
		if dead, errParse := strconv.ParseBool(deadQ); errParse == nil {
			q = q.Where("is_dead = ?", dead)
		}
	}

	var rows []models.MinecraftAccount
	if errFind := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; errFind != nil {
		log.WithError(errFind).Error("admin: list accounts failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "list accounts failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, accountResponse(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

// Deactivate disables an account locally.
func (h *AccountHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

// Activate re-enables an account.
func (h *AccountHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *AccountHandler) setActive(c *gin.Context, active bool) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	account, errSet := h.linker.SetActive(c.Request.Context(), id, active)
	if errSet != nil {
		if errors.Is(errSet, linking.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
			return
		}
		log.WithError(errSet).WithField("account_id", id).Error("admin: set account active failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "update failed"})
		return
	}
	c.JSON(http.StatusOK, accountResponse(&account))
}

// RevokeToken deactivates an unbound game token.
func (h *AccountHandler) RevokeToken(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	token, errRevoke := h.tokens.Revoke(c.Request.Context(), id)
	if errRevoke != nil {
		switch {
		case errors.Is(errRevoke, tokens.ErrTokenNotFound):
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		case errors.Is(errRevoke, tokens.ErrTokenBound):
			c.JSON(http.StatusConflict, gin.H{"detail": "Token is already linked to an account."})
		default:
			log.WithError(errRevoke).WithField("token_id", id).Error("admin: revoke token failed")
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "revoke failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": token.ID, "active": token.IsActive})
}
