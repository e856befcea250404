package app

import (
	"fmt"

	"github.com/router-for-me/mclink/internal/models"
	"gorm.io/gorm"
)

// HasStaffUser reports whether at least one staff user exists.
func HasStaffUser(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.User{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.User{}).Where("is_staff = ?", true).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}
