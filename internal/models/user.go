package models

import "time"

// Supported user interface languages.
const (
	LanguageEnglish   = "en"
	LanguageUkrainian = "uk"
)

// User represents a registered player account.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username  string `gorm:"type:varchar(150);not null;uniqueIndex"` // Unique login name.
	Email     string `gorm:"type:varchar(254)"`                      // Email address.
	FirstName string `gorm:"type:varchar(150)"`                      // Given name.
	LastName  string `gorm:"type:varchar(150)"`                      // Family name.
	Password  string `gorm:"type:varchar(255);not null"`             // Hashed password.

	Slots int `gorm:"not null;default:1"` // Lifetime cap on issued game tokens.

	PreferredLanguage string `gorm:"type:varchar(10);not null;default:'en'"` // UI language code.

	IsActive bool `gorm:"not null;default:true"`  // Whether the user can sign in.
	IsStaff  bool `gorm:"not null;default:false"` // Staff flag.

	TOTPSecret  string `gorm:"column:totp_secret;type:text"`                // TOTP secret, pending until TOTPEnabled.
	TOTPEnabled bool   `gorm:"column:totp_enabled;not null;default:false"` // Whether the TOTP device is confirmed.

	GameTokens []GameToken `gorm:"foreignKey:UserID"` // Issued game tokens.

	LastLogin  *time.Time // Last successful sign in.
	DateJoined time.Time  `gorm:"not null;autoCreateTime"` // Registration timestamp.
	UpdatedAt  time.Time  `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
