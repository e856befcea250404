package server

import (
	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/http/api/server/handlers"
	"github.com/router-for-me/mclink/internal/http/middleware"
	"github.com/router-for-me/mclink/internal/linking"
	"github.com/router-for-me/mclink/internal/security"
	"github.com/router-for-me/mclink/internal/tokens"
)

// RegisterServerRoutes registers the routes the game server calls with its shared key.
func RegisterServerRoutes(r *gin.Engine, key *security.ServerKey, linker *linking.Linker, service *tokens.Service) {
	if r == nil || linker == nil {
		return
	}

	group := r.Group("/api/server")
	group.Use(middleware.ServerKeyAuth(key))

	accountHandler := handlers.NewAccountHandler(linker, service)
	group.PUT("/minecraft/accounts/:id/uuid", accountHandler.AttachUUID)
	group.POST("/minecraft/accounts/:id/dead", accountHandler.MarkDead)
	group.POST("/tokens/:id/revoke", accountHandler.RevokeToken)
}
