package models

import "time"

// MinecraftAccount is an external game identity bound to exactly one game token.
type MinecraftAccount struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Nickname string  `gorm:"type:varchar(255);not null;uniqueIndex"` // Globally unique in-game name.
	UUID     *string `gorm:"column:uuid;type:varchar(64);uniqueIndex"` // External ID, set once the game server confirms.

	OwnerID uint64 `gorm:"not null;index"`      // Owning user ID.
	Owner   *User  `gorm:"foreignKey:OwnerID"` // Owning user.

	TokenID uint64     `gorm:"not null;uniqueIndex"` // Backing game token ID.
	Token   *GameToken `gorm:"foreignKey:TokenID"`  // Backing game token.

	IsDead bool       `gorm:"not null;default:false"` // External identity is gone.
	DeadAt *time.Time // When the identity was reported dead.

	IsActive      bool       `gorm:"not null;default:true"` // Local enable flag.
	DeactivatedAt *time.Time // When the account was disabled locally.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
