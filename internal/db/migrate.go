package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Migrate creates or updates every table.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(models.All()...); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}

// SeedAdmin creates the first super admin when no admin exists yet.
// It reports whether an admin was created.
func SeedAdmin(ctx context.Context, conn *gorm.DB, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if conn == nil || username == "" || password == "" {
		return false, nil
	}

	var count int64
	if errCount := conn.WithContext(ctx).Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("db: count admins: %w", errCount)
	}
	if count > 0 {
		return false, nil
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return false, fmt.Errorf("db: hash admin password: %w", errHash)
	}
	admin := models.Admin{
		Username:     username,
		Password:     hash,
		Active:       true,
		IsSuperAdmin: true,
		Permissions:  datatypes.JSON("[]"),
	}
	if errCreate := conn.WithContext(ctx).Create(&admin).Error; errCreate != nil {
		return false, fmt.Errorf("db: seed admin: %w", errCreate)
	}
	log.Infof("seeded super admin %q", username)
	return true, nil
}
