package database

import (
	"gorm.io/gorm"

	"github.com/clinidesk/clinidesk/internal/models"
	"github.com/clinidesk/clinidesk/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Notification{},
		&models.Appointment{},
	)
}

// SeedData ensures a default administrator account exists so the clinic can be
// bootstrapped on a fresh database. The password must be rotated on first login.
func SeedData(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := crypto.HashPassword("admin")
	if err != nil {
		return err
	}

	admin := models.User{
		Email:     "admin@clinidesk.local",
		Password:  hash,
		FirstName: "Default",
		LastName:  "Admin",
		Role:      models.RoleAdmin,
		IsActive:  true,
	}
	return db.Create(&admin).Error
}
