package front

import (
	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/config"
	"github.com/router-for-me/mclink/internal/http/api/front/handlers"
	"github.com/router-for-me/mclink/internal/http/middleware"
	"github.com/router-for-me/mclink/internal/linking"
	"github.com/router-for-me/mclink/internal/ratelimit"
	"github.com/router-for-me/mclink/internal/tokens"
	"gorm.io/gorm"
)

// Services bundles the domain services behind the user-facing API.
type Services struct {
	Tokens  *tokens.Service
	Linker  *linking.Linker
	Limiter *ratelimit.Manager
}

// RegisterFrontRoutes registers the player-facing routes.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, cookieCfg config.CookieConfig, svc Services) {
	if r == nil || db == nil {
		return
	}

	accountHandler := handlers.NewAccountHandler(db, jwtCfg, cookieCfg)
	accounts := r.Group("/api/accounts")
	authLimit := middleware.RateLimitByIP(svc.Limiter, ratelimit.ActionAuth)
	accounts.POST("/register/", authLimit, accountHandler.Register)
	accounts.POST("/token/", authLimit, accountHandler.Token)
	accounts.POST("/refresh/", authLimit, accountHandler.Refresh)
	accounts.POST("/verify/", accountHandler.Verify)
	accounts.POST("/logout/", accountHandler.Logout)

	authed := r.Group("")
	authed.Use(middleware.UserAuth(db, jwtCfg))
	authed.GET("/api/accounts/me/", accountHandler.Me)

	tokenHandler := handlers.NewTokenHandler(svc.Tokens)
	authed.GET("/api/accounts/tokens/", tokenHandler.List)
	authed.POST("/api/accounts/tokens/",
		middleware.RateLimit(svc.Limiter, ratelimit.ActionIssueToken),
		tokenHandler.Create,
	)

	minecraftHandler := handlers.NewMinecraftHandler(svc.Linker)
	linkLimit := middleware.RateLimit(svc.Limiter, ratelimit.ActionLink)
	authed.GET("/api/minecraft/link-token/", linkLimit, minecraftHandler.LinkToken)
	authed.POST("/api/minecraft/link-token/", linkLimit, minecraftHandler.LinkToken)
	authed.GET("/api/minecraft/accounts/", minecraftHandler.ListAccounts)
}
