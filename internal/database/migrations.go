package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/saudema/saudema/internal/models"
	"github.com/saudema/saudema/pkg/crypto"
)

// SeedOptions describes the administrator provisioned at startup. Seeding is
// skipped when Email is empty.
type SeedOptions struct {
	AdminUsername string
	AdminEmail    string
	AdminPassword string
	PasswordCost  int
}

// AutoMigrate creates or updates the schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.PasswordResetToken{},
		&models.CacheEntry{},
		&models.Place{},
		&models.ReferenceList{},
		&models.SearchEvent{},
	)
}

// SeedData provisions the configured administrator, promoting an existing
// account with the same e-mail instead of creating a duplicate.
func SeedData(db *gorm.DB, opts SeedOptions) error {
	email := strings.ToLower(strings.TrimSpace(opts.AdminEmail))
	if email == "" {
		return nil
	}

	var existing models.User
	err := db.Where("email = ?", email).Take(&existing).Error
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			return nil
		}
		return db.Model(&existing).Update("role", models.RoleAdmin).Error
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	if opts.AdminPassword == "" {
		return fmt.Errorf("admin password is required to seed %s", email)
	}
	hash, err := crypto.HashPassword(opts.AdminPassword, opts.PasswordCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	username := strings.TrimSpace(opts.AdminUsername)
	if username == "" {
		username = "admin"
	}

	return db.Create(&models.User{
		Username:      username,
		Email:         email,
		Password:      hash,
		Role:          models.RoleAdmin,
		EmailVerified: true,
	}).Error
}
