package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/http/middleware"
	"github.com/router-for-me/mclink/internal/models"
	"github.com/router-for-me/mclink/internal/tokens"
	log "github.com/sirupsen/logrus"
)

// TokenHandler handles game token issuance for users.
type TokenHandler struct {
	tokens *tokens.Service
}

// NewTokenHandler constructs a TokenHandler.
func NewTokenHandler(service *tokens.Service) *TokenHandler {
	return &TokenHandler{tokens: service}
}

func tokenResponse(token *models.GameToken) gin.H {
	return gin.H{
		"id":           token.ID,
		"value":        token.Value,
		"active":       token.IsActive,
		"generated_at": token.GeneratedAt,
	}
}

// Create issues a token while the user's slot cap allows it.
func (h *TokenHandler) Create(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "unauthorized"})
		return
	}

	token, errIssue := h.tokens.Issue(c.Request.Context(), userID)
	if errIssue != nil {
		var quotaErr *tokens.QuotaExceededError
		if errors.As(errIssue, &quotaErr) {
			c.JSON(http.StatusForbidden, gin.H{
				"detail":  "Token limit reached.",
				"limit":   quotaErr.Limit,
				"current": quotaErr.Current,
			})
			return
		}
		if errors.Is(errIssue, tokens.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "unauthorized"})
			return
		}
		log.WithError(errIssue).WithField("user_id", userID).Error("issue game token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "issue token failed"})
		return
	}

	c.JSON(http.StatusCreated, tokenResponse(&token))
}

// List returns the user's tokens and which account each one backs.
func (h *TokenHandler) List(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "unauthorized"})
		return
	}

	rows, errList := h.tokens.List(c.Request.Context(), userID)
	if errList != nil {
		log.WithError(errList).WithField("user_id", userID).Error("list game tokens failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "list tokens failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		item := tokenResponse(&rows[i])
		if rows[i].MinecraftAccount != nil {
			item["account_id"] = rows[i].MinecraftAccount.ID
		} else {
			item["account_id"] = nil
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"tokens": out})
}
