package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/http/middleware"
	"github.com/router-for-me/mclink/internal/linking"
	log "github.com/sirupsen/logrus"
)

// Link failure messages shown to players.
const (
	msgNoAvailableToken    = "No available tokens. Generate one first."
	msgUpstreamUnavailable = "Failed to generate identity. Please try again."
	msgUpstreamError       = "Identity provider error."
	msgNameExhaustion      = "Currently impossible to generate a new user, please try again later."
)

// MinecraftHandler handles account linking for users.
type MinecraftHandler struct {
	linker *linking.Linker
}

// NewMinecraftHandler constructs a MinecraftHandler.
func NewMinecraftHandler(linker *linking.Linker) *MinecraftHandler {
	return &MinecraftHandler{linker: linker}
}

// LinkToken binds the user's oldest unused token to a new account.
func (h *MinecraftHandler) LinkToken(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "unauthorized"})
		return
	}

	req := linking.Request{
		Gender:      strings.TrimSpace(c.Query("gender")),
		Nationality: strings.TrimSpace(c.Query("nationality")),
	}
	res, errLink := h.linker.Link(c.Request.Context(), userID, req)
	switch {
	case errLink == nil:
		c.JSON(http.StatusCreated, gin.H{
			"ok":         true,
			"account_id": res.AccountID,
			"nickname":   res.Nickname,
			"uuid":       res.UUID,
			"created_at": res.CreatedAt,
		})
	case errors.Is(errLink, linking.ErrNoAvailableToken):
		c.JSON(http.StatusForbidden, gin.H{"detail": msgNoAvailableToken})
	case errors.Is(errLink, linking.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"detail": msgUpstreamUnavailable})
	case errors.Is(errLink, linking.ErrUpstreamError):
		c.JSON(http.StatusBadGateway, gin.H{"detail": msgUpstreamError})
	case errors.Is(errLink, linking.ErrNameExhaustion):
		c.JSON(http.StatusBadGateway, gin.H{"detail": msgNameExhaustion})
	default:
		log.WithError(errLink).WithField("user_id", userID).Error("link minecraft account failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "link failed"})
	}
}

// ListAccounts returns the user's linked accounts.
func (h *MinecraftHandler) ListAccounts(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "unauthorized"})
		return
	}

	rows, errList := h.linker.ListAccounts(c.Request.Context(), userID)
	if errList != nil {
		log.WithError(errList).WithField("user_id", userID).Error("list minecraft accounts failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "list accounts failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":         row.ID,
			"nickname":   row.Nickname,
			"uuid":       row.UUID,
			"is_dead":    row.IsDead,
			"dead_at":    row.DeadAt,
			"is_active":  row.IsActive,
			"created_at": row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}
