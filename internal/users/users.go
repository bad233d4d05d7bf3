// Package users keeps Telegram users in sync with the platform.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Profile is the Telegram identity reported by the bot or the mini-app.
type Profile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// Upsert creates the user on first contact and refreshes the profile afterwards.
func Upsert(ctx context.Context, db *gorm.DB, p Profile) (models.User, error) {
	if p.TelegramID == 0 {
		return models.User{}, apperr.Validation(apperr.CodeInvalidInput, "telegram id is required")
	}
	row := models.User{
		TelegramID: p.TelegramID,
		Username:   strings.TrimPrefix(strings.TrimSpace(p.Username), "@"),
		FirstName:  strings.TrimSpace(p.FirstName),
		LastName:   strings.TrimSpace(p.LastName),
		UpdatedAt:  time.Now().UTC(),
	}
	conn := db.WithContext(ctx)
	if errUpsert := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "last_name", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		return models.User{}, errUpsert
	}

	var user models.User
	if errFind := conn.Where("telegram_id = ?", p.TelegramID).First(&user).Error; errFind != nil {
		return models.User{}, errFind
	}
	return user, nil
}

// FindByTelegramID loads a user by Telegram identity.
func FindByTelegramID(ctx context.Context, db *gorm.DB, telegramID int64) (models.User, error) {
	var user models.User
	if errFind := db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.User{}, apperr.NotFound(apperr.CodeNotFound, "user not found")
		}
		return models.User{}, errFind
	}
	return user, nil
}
