package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/linking"
	"github.com/router-for-me/mclink/internal/models"
	"github.com/router-for-me/mclink/internal/tokens"
	log "github.com/sirupsen/logrus"
)

// AccountHandler serves calls from the game server.
type AccountHandler struct {
	linker *linking.Linker
	tokens *tokens.Service
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(linker *linking.Linker, service *tokens.Service) *AccountHandler {
	return &AccountHandler{linker: linker, tokens: service}
}

// attachUUIDRequest defines the request body for attaching the external id.
type attachUUIDRequest struct {
	UUID string `json:"uuid"`
}

func accountResponse(account *models.MinecraftAccount) gin.H {
	return gin.H{
		"id":         account.ID,
		"nickname":   account.Nickname,
		"uuid":       account.UUID,
		"owner_id":   account.OwnerID,
		"is_dead":    account.IsDead,
		"dead_at":    account.DeadAt,
		"is_active":  account.IsActive,
		"created_at": account.CreatedAt,
	}
}

func parseID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid id"})
		return 0, false
	}
	return id, true
}

// AttachUUID stores the id the game server assigned to the account.
func (h *AccountHandler) AttachUUID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body attachUUIDRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid json"})
		return
	}

	account, errAttach := h.linker.AttachUUID(c.Request.Context(), id, body.UUID)
	switch {
	case errAttach == nil:
		c.JSON(http.StatusOK, accountResponse(&account))
	case errors.Is(errAttach, linking.ErrInvalidUUID):
		c.JSON(http.StatusBadRequest, gin.H{"uuid": []string{"Must be a valid UUID."}})
	case errors.Is(errAttach, linking.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
	case errors.Is(errAttach, linking.ErrUUIDTaken), errors.Is(errAttach, linking.ErrUUIDAlreadySet):
		c.JSON(http.StatusConflict, gin.H{"detail": errAttach.Error()})
	default:
		log.WithError(errAttach).WithField("account_id", id).Error("attach uuid failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "attach uuid failed"})
	}
}

// MarkDead records that the account's game identity no longer exists.
func (h *AccountHandler) MarkDead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	account, errMark := h.linker.MarkDead(c.Request.Context(), id)
	switch {
	case errMark == nil:
		c.JSON(http.StatusOK, accountResponse(&account))
	case errors.Is(errMark, linking.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
	default:
		log.WithError(errMark).WithField("account_id", id).Error("mark account dead failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "mark dead failed"})
	}
}

// RevokeToken deactivates a token that was never linked.
func (h *AccountHandler) RevokeToken(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	token, errRevoke := h.tokens.Revoke(c.Request.Context(), id)
	switch {
	case errRevoke == nil:
		c.JSON(http.StatusOK, gin.H{"id": token.ID, "active": token.IsActive})
	case errors.Is(errRevoke, tokens.ErrTokenNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
	case errors.Is(errRevoke, tokens.ErrTokenBound):
		c.JSON(http.StatusConflict, gin.H{"detail": "Token is already linked to an account."})
	default:
		log.WithError(errRevoke).WithField("token_id", id).Error("revoke token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "revoke failed"})
	}
}
