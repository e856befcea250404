package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/router-for-me/mclink/internal/config"
	"github.com/router-for-me/mclink/internal/db"
	"github.com/router-for-me/mclink/internal/models"
	"github.com/router-for-me/mclink/internal/security"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// DefaultSQLiteDSN is written into a generated config when no DSN is given.
const DefaultSQLiteDSN = "file:mclink.db"

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Host            string                 `yaml:"host"`
	Port            int                    `yaml:"port"`
	DatabaseDSN     string                 `yaml:"database-dsn"`
	Debug           bool                   `yaml:"debug"`
	MaintenanceMode bool                   `yaml:"maintenance-mode"`
	LoggingToFile   bool                   `yaml:"logging-to-file"`
	ServerKey       string                 `yaml:"server-key"`
	CORSOrigins     []string               `yaml:"cors-origins"`
	JWT             jwtCfg                 `yaml:"jwt"`
	Identity        config.IdentityConfig  `yaml:"identity"`
	RateLimit       config.RateLimitConfig `yaml:"rate-limit"`
}

// jwtCfg holds JWT settings for the generated config file.
type jwtCfg struct {
	Secret        string `yaml:"secret"`
	AccessExpiry  string `yaml:"access-expiry"`
	RefreshExpiry string `yaml:"refresh-expiry"`
}

// generateSecret creates a random secret string.
func generateSecret() string {
	secret, err := security.GenerateRandomString(32)
	if err != nil {
		return "change-me-to-a-secure-random-string"
	}
	return secret
}

// WriteConfigFile writes an initial config file with fresh JWT and server secrets.
func WriteConfigFile(configPath string, dsn string, port int) error {
	if strings.TrimSpace(dsn) == "" {
		dsn = DefaultSQLiteDSN
	}
	cfg := configFile{
		Port:        port,
		DatabaseDSN: dsn,
		ServerKey:   generateSecret(),
		CORSOrigins: []string{"http://localhost:3000"},
		JWT: jwtCfg{
			Secret:        generateSecret(),
			AccessExpiry:  "15m",
			RefreshExpiry: "168h",
		},
		Identity: config.IdentityConfig{
			BaseURL: "https://randomuser.me/api/",
			Timeout: 5 * time.Second,
		},
		RateLimit: config.RateLimitConfig{
			LinkPerSecond:  1,
			IssuePerSecond: 2,
			AuthPerSecond:  5,
			Redis:          config.RedisConfig{Prefix: "mclink:rl"},
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}
	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}
	log.Infof("wrote initial config to %s", configPath)
	return nil
}

// CreateStaffUser opens the database and creates a staff user.
func CreateStaffUser(dsn string, username, password string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	return CreateStaffUserWithConn(conn, username, password)
}

// CreateStaffUserWithConn creates a staff user on an open connection.
func CreateStaffUserWithConn(conn *gorm.DB, username, password string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	user := models.User{
		Username: username,
		Password: hashedPassword,
		Slots:    1,
		IsActive: true,
		IsStaff:  true,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		return fmt.Errorf("create staff user: %w", errCreate)
	}
	return nil
}
