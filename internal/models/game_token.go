package models

import "time"

// GameToken is a single-use token that can be bound to one Minecraft account.
type GameToken struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`     // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"` // Owning user.

	Value    string `gorm:"type:varchar(64);not null;uniqueIndex"` // Opaque URL-safe secret.
	IsActive bool   `gorm:"not null;default:true"`                 // False once consumed or revoked.

	MinecraftAccount *MinecraftAccount `gorm:"foreignKey:TokenID"` // Bound account, if any.

	GeneratedAt time.Time `gorm:"not null;index"` // Issue timestamp.
}
