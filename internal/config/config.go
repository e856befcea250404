package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath      = "CONFIG_PATH"
	EnvDBConnection    = "DB_CONNECTION"
	EnvJWTSecret       = "JWT_SECRET"
	EnvJWTExpiry       = "JWT_EXPIRY"
	EnvServerKey       = "SERVER_KEY"
	EnvMaintenanceMode = "MAINTENANCE_MODE"
	EnvIdentityBaseURL = "IDENTITY_BASE_URL"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
// A .env file in the working directory is applied first without overriding
// variables that are already set.
func LoadFromEnv() (AppConfig, error) {
	if errLoad := godotenv.Load(); errLoad != nil && !errors.Is(errLoad, os.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", errLoad)
	}
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// JWTConfig holds the signing secret and token lifetimes.
type JWTConfig struct {
	Secret        string        `yaml:"secret"`
	AccessExpiry  time.Duration `yaml:"access-expiry"`
	RefreshExpiry time.Duration `yaml:"refresh-expiry"`
}

const (
	defaultAccessExpiry  = 15 * time.Minute
	defaultRefreshExpiry = 7 * 24 * time.Hour
)

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{AccessExpiry: defaultAccessExpiry, RefreshExpiry: defaultRefreshExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.AccessExpiry = expiry
		}
	}

	if result.AccessExpiry <= 0 {
		result.AccessExpiry = defaultAccessExpiry
	}
	if result.RefreshExpiry <= 0 {
		result.RefreshExpiry = defaultRefreshExpiry
	}
	return result, nil
}

// CookieConfig controls how auth cookies are issued.
type CookieConfig struct {
	Secure   bool   `yaml:"secure"`
	Domain   string `yaml:"domain"`
	SameSite string `yaml:"same-site"`
}

// SameSiteMode maps the configured value to net/http; unknown values mean Lax.
func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(strings.TrimSpace(c.SameSite)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// IdentityConfig configures the random identity provider client.
type IdentityConfig struct {
	BaseURL string        `yaml:"base-url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig configures the optional Redis rate limit backend.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RateLimitConfig holds request limits per second (0 disables). Link and
// issue are counted per user, auth per client IP.
type RateLimitConfig struct {
	LinkPerSecond  int         `yaml:"link-per-second"`
	IssuePerSecond int         `yaml:"issue-per-second"`
	AuthPerSecond  int         `yaml:"auth-per-second"`
	Redis          RedisConfig `yaml:"redis"`
}

// ServerConfig is the runtime configuration read from config.yaml.
type ServerConfig struct {
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	Debug           bool            `yaml:"debug"`
	MaintenanceMode bool            `yaml:"maintenance-mode"`
	LoggingToFile   bool            `yaml:"logging-to-file"`
	LogDir          string          `yaml:"log-dir"`
	ServerKey       string          `yaml:"server-key"`
	CORSOrigins     []string        `yaml:"cors-origins"`
	Cookie          CookieConfig    `yaml:"cookie"`
	Identity        IdentityConfig  `yaml:"identity"`
	RateLimit       RateLimitConfig `yaml:"rate-limit"`
}

const (
	defaultPort             = 8000
	defaultLogDir           = "./logs"
	defaultIdentityBaseURL  = "https://randomuser.me/api/"
	defaultIdentityTimeout  = 5 * time.Second
	defaultLinkPerSecond    = 1
	defaultIssuePerSecond   = 2
	defaultAuthPerSecond    = 5
	defaultRateLimitPrefix  = "mclink:rl"
	defaultCORSOriginsLocal = "http://localhost:3000"
)

// LoadServerConfig reads runtime settings; a missing file yields defaults.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	cfg := ServerConfig{
		Port:        defaultPort,
		LogDir:      defaultLogDir,
		CORSOrigins: []string{defaultCORSOriginsLocal},
		Identity: IdentityConfig{
			BaseURL: defaultIdentityBaseURL,
			Timeout: defaultIdentityTimeout,
		},
		RateLimit: RateLimitConfig{
			LinkPerSecond:  defaultLinkPerSecond,
			IssuePerSecond: defaultIssuePerSecond,
			AuthPerSecond:  defaultAuthPerSecond,
			Redis:          RedisConfig{Prefix: defaultRateLimitPrefix},
		},
	}

	data, errRead := os.ReadFile(configPath)
	if errRead != nil && !errors.Is(errRead, os.ErrNotExist) {
		return ServerConfig{}, fmt.Errorf("read config file: %w", errRead)
	}
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return ServerConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	}

	if key := strings.TrimSpace(os.Getenv(EnvServerKey)); key != "" {
		cfg.ServerKey = key
	}
	if raw := strings.TrimSpace(os.Getenv(EnvMaintenanceMode)); raw != "" {
		if enabled, errParse := strconv.ParseBool(raw); errParse == nil {
			cfg.MaintenanceMode = enabled
		}
	}
	if baseURL := strings.TrimSpace(os.Getenv(EnvIdentityBaseURL)); baseURL != "" {
		cfg.Identity.BaseURL = baseURL
	}

	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.LogDir) == "" {
		cfg.LogDir = defaultLogDir
	}
	if strings.TrimSpace(cfg.Identity.BaseURL) == "" {
		cfg.Identity.BaseURL = defaultIdentityBaseURL
	}
	if cfg.Identity.Timeout <= 0 {
		cfg.Identity.Timeout = defaultIdentityTimeout
	}
	if strings.TrimSpace(cfg.RateLimit.Redis.Prefix) == "" {
		cfg.RateLimit.Redis.Prefix = defaultRateLimitPrefix
	}
	return cfg, nil
}
