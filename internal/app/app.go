package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/config"
	"github.com/router-for-me/mclink/internal/db"
	"github.com/router-for-me/mclink/internal/http/api/admin"
	"github.com/router-for-me/mclink/internal/http/api/front"
	"github.com/router-for-me/mclink/internal/http/api/server"
	"github.com/router-for-me/mclink/internal/http/middleware"
	"github.com/router-for-me/mclink/internal/identity"
	"github.com/router-for-me/mclink/internal/linking"
	"github.com/router-for-me/mclink/internal/logging"
	"github.com/router-for-me/mclink/internal/nickname"
	"github.com/router-for-me/mclink/internal/ratelimit"
	"github.com/router-for-me/mclink/internal/security"
	"github.com/router-for-me/mclink/internal/tokens"
	"github.com/router-for-me/mclink/internal/watcher"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 5 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// EngineOptions carries everything NewEngine wires into routes.
type EngineOptions struct {
	DB       *gorm.DB
	Server   config.ServerConfig
	JWT      config.JWTConfig
	Provider identity.Provider
	Limiter  *ratelimit.Manager

	// Maintenance overrides Server.MaintenanceMode when set.
	Maintenance *middleware.MaintenanceSwitch
}

// NewEngine builds the gin engine with middleware and all routes.
func NewEngine(opts EngineOptions) *gin.Engine {
	maintenance := opts.Maintenance
	if maintenance == nil {
		maintenance = middleware.NewMaintenanceSwitch(opts.Server.MaintenanceMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logging.RequestLogger())
	engine.Use(middleware.CORS(opts.Server.CORSOrigins))
	engine.Use(middleware.Maintenance(maintenance))
	engine.Use(middleware.Languages(opts.DB, opts.JWT))

	engine.GET("/ping/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/healthz", func(c *gin.Context) {
		sqlDB, errDB := opts.DB.DB()
		if errDB == nil {
			errDB = sqlDB.PingContext(c.Request.Context())
		}
		if errDB != nil {
			log.WithError(errDB).Warn("healthz: database ping failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	tokenService := tokens.NewService(opts.DB)
	resolver := nickname.NewResolver(opts.Provider, nickname.NewGormClaims(opts.DB))
	linker := linking.NewLinker(opts.DB, resolver)

	front.RegisterFrontRoutes(engine, opts.DB, opts.JWT, opts.Server.Cookie, front.Services{
		Tokens:  tokenService,
		Linker:  linker,
		Limiter: opts.Limiter,
	})
	admin.RegisterAdminRoutes(engine, opts.DB, opts.JWT, !opts.Server.Debug, linker, tokenService)
	server.RegisterServerRoutes(engine, security.NewServerKey(opts.Server.ServerKey), linker, tokenService)
	return engine
}

// RunServer loads configuration, prepares storage and serves HTTP until ctx is done.
// A positive portOverride replaces the configured port.
func RunServer(ctx context.Context, cfg config.AppConfig, portOverride int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	configPath := config.ResolveConfigPath(cfg.ConfigPath)

	serverCfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	if portOverride > 0 {
		serverCfg.Port = portOverride
	}
	logCloser := logging.Setup(logging.Options{
		Debug:  serverCfg.Debug,
		ToFile: serverCfg.LoggingToFile,
		Dir:    serverCfg.LogDir,
	})
	defer func() {
		if errClose := logCloser.Close(); errClose != nil {
			log.WithError(errClose).Warn("close log file failed")
		}
	}()

	jwtCfg, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return err
	}
	if jwtCfg.Secret == "" {
		return fmt.Errorf("jwt secret is not configured (set jwt.secret or %s)", config.EnvJWTSecret)
	}
	if serverCfg.ServerKey == "" {
		log.Warn("server-key is empty, server-to-server routes will reject every call")
	}

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if hasStaff, errStaff := HasStaffUser(conn); errStaff == nil && !hasStaff {
		log.Info("no staff user yet, create one with -create-staff")
	}

	limiter := ratelimit.NewManager(serverCfg.RateLimit, nil, nil)
	defer func() {
		if errClose := limiter.Close(); errClose != nil {
			log.WithError(errClose).Warn("close rate limiter failed")
		}
	}()

	if serverCfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	maintenance := middleware.NewMaintenanceSwitch(serverCfg.MaintenanceMode)
	engine := NewEngine(EngineOptions{
		DB:          conn,
		Server:      serverCfg,
		JWT:         jwtCfg,
		Provider:    identity.NewClient(serverCfg.Identity.BaseURL, serverCfg.Identity.Timeout),
		Limiter:     limiter,
		Maintenance: maintenance,
	})

	cfgWatcher := watcher.New(configPath, 0, func(next config.ServerConfig) {
		applyRuntimeConfig(maintenance, limiter, next)
	})
	cfgWatcher.Start(ctx)
	defer cfgWatcher.Stop()

	addr := net.JoinHostPort(serverCfg.Host, strconv.Itoa(serverCfg.Port))
	return serve(ctx, &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	})
}

// applyRuntimeConfig applies the settings that can change without a restart.
// Rate limits reload; the Redis connection settings do not.
func applyRuntimeConfig(maintenance *middleware.MaintenanceSwitch, limiter *ratelimit.Manager, next config.ServerConfig) {
	if maintenance.Set(next.MaintenanceMode) {
		log.WithField("enabled", next.MaintenanceMode).Info("maintenance mode changed")
	}
	if limiter.SetLimits(next.RateLimit) {
		log.WithFields(log.Fields{
			"link":  next.RateLimit.LinkPerSecond,
			"issue": next.RateLimit.IssuePerSecond,
			"auth":  next.RateLimit.AuthPerSecond,
		}).Info("rate limits changed")
	}
	level := log.InfoLevel
	if next.Debug {
		level = log.DebugLevel
	}
	if log.GetLevel() != level {
		log.SetLevel(level)
		log.WithField("level", level.String()).Info("log level changed")
	}
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("mclink server listening on %s", srv.Addr)
		if errServe := srv.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown server: %w", errShutdown)
	}
	log.Info("mclink server stopped")
	return nil
}
