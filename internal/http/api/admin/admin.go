package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/config"
	handlers "github.com/router-for-me/mclink/internal/http/api/admin/handlers"
	"github.com/router-for-me/mclink/internal/http/middleware"
	"github.com/router-for-me/mclink/internal/linking"
	"github.com/router-for-me/mclink/internal/tokens"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers the staff-only management routes. With
// requireOTP set, management routes need an access token issued by the
// TOTP verify route.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, requireOTP bool, linker *linking.Linker, service *tokens.Service) {
	if r == nil || db == nil {
		return
	}

	selfAuthed := r.Group("/api/admin/otp")
	selfAuthed.Use(middleware.UserAuth(db, jwtCfg))
	selfAuthed.Use(middleware.StaffOnly(false))

	otpHandler := handlers.NewOTPHandler(db, jwtCfg)
	selfAuthed.GET("/status/", otpHandler.Status)
	selfAuthed.POST("/totp/prepare/", otpHandler.Prepare)
	selfAuthed.POST("/totp/confirm/", otpHandler.Confirm)
	selfAuthed.POST("/totp/disable/", otpHandler.Disable)
	selfAuthed.POST("/verify/", otpHandler.Verify)

	authed := r.Group("/api/admin")
	authed.Use(middleware.UserAuth(db, jwtCfg))
	authed.Use(middleware.StaffOnly(requireOTP))

	userHandler := handlers.NewUserHandler(db, service)
	authed.GET("/users/", userHandler.List)
	authed.GET("/users/:id/", userHandler.Get)
	authed.PATCH("/users/:id/", userHandler.Update)
	authed.POST("/users/:id/disable/", userHandler.Disable)
	authed.POST("/users/:id/enable/", userHandler.Enable)
	authed.PUT("/users/:id/password/", userHandler.ChangePassword)
	authed.GET("/users/:id/tokens/", userHandler.Tokens)

	accountHandler := handlers.NewAccountHandler(db, linker, service)
	authed.GET("/minecraft/accounts/", accountHandler.List)
	authed.POST("/minecraft/accounts/:id/deactivate/", accountHandler.Deactivate)
	authed.POST("/minecraft/accounts/:id/activate/", accountHandler.Activate)
	authed.POST("/tokens/:id/revoke/", accountHandler.RevokeToken)
}
