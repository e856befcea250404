package db

import (
	"fmt"

	"github.com/router-for-me/mclink/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectMySQL:
		return migrateTables(conn)
	case DialectPostgres, "":
		if errMigrate := migrateTables(conn); errMigrate != nil {
			return errMigrate
		}
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// migrateTables creates the tables shared by every dialect.
func migrateTables(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.GameToken{},
		&models.MinecraftAccount{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_game_tokens_user_active_generated",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_game_tokens_user_active_generated
				ON game_tokens (user_id, is_active, generated_at)
			`,
		},
	}
	if DialectName(conn) == DialectMySQL {
		// MySQL has no CREATE INDEX IF NOT EXISTS; AutoMigrate indexes cover it.
		return nil
	}
	for _, stmt := range ddls {
		if errExec := conn.Exec(stmt.sql).Error; errExec != nil {
			return fmt.Errorf("db: create %s: %w", stmt.name, errExec)
		}
	}
	return nil
}

// migratePostgres applies PostgreSQL-only constraints.
func migratePostgres(conn *gorm.DB) error {
	if errCheck := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'chk_users_slots_positive'
			) THEN
				ALTER TABLE users ADD CONSTRAINT chk_users_slots_positive CHECK (slots > 0);
			END IF;
		END $$;
	`).Error; errCheck != nil {
		return fmt.Errorf("db: add slots check: %w", errCheck)
	}
	return nil
}
