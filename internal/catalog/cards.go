package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	dbutil "github.com/IlyaStepanov1104/Backgammon-sub000/internal/db"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CardInput carries card fields. Nil pointers are left unchanged on update.
type CardInput struct {
	Title       *string
	Description *string
	Answer      *string
	ImageURL    *string
	Difficulty  *string
	Tags        []string // Nil keeps the current tags.
	Active      *bool
}

// CreateCard validates and stores a new card.
func (s *Service) CreateCard(ctx context.Context, in CardInput) (models.Card, error) {
	card := models.Card{Difficulty: models.DifficultyMedium, Tags: datatypes.JSON("[]"), Active: true}
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return models.Card{}, apperr.Validation(apperr.CodeInvalidInput, "title is required")
	}
	if errApply := applyCardInput(&card, in); errApply != nil {
		return models.Card{}, errApply
	}
	if errCreate := s.db.WithContext(ctx).Create(&card).Error; errCreate != nil {
		return models.Card{}, errCreate
	}
	return card, nil
}

// UpdateCard applies the non-nil fields of in.
func (s *Service) UpdateCard(ctx context.Context, id uint64, in CardInput) (models.Card, error) {
	card, errGet := s.GetCard(ctx, id)
	if errGet != nil {
		return models.Card{}, errGet
	}
	if errApply := applyCardInput(&card, in); errApply != nil {
		return models.Card{}, errApply
	}
	if errSave := s.db.WithContext(ctx).Save(&card).Error; errSave != nil {
		return models.Card{}, errSave
	}
	return card, nil
}

// GetCard loads a card by id.
func (s *Service) GetCard(ctx context.Context, id uint64) (models.Card, error) {
	var card models.Card
	if errFind := s.db.WithContext(ctx).First(&card, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Card{}, apperr.NotFound(apperr.CodeNotFound, "card not found")
		}
		return models.Card{}, errFind
	}
	return card, nil
}

// DeleteCard removes a card together with its access rows and set memberships.
func (s *Service) DeleteCard(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Card{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound(apperr.CodeNotFound, "card not found")
		}
		for _, cleanup := range []struct {
			model any
			where string
		}{
			{&models.CardAccess{}, "card_id = ?"},
			{&models.Favorite{}, "card_id = ?"},
			{&models.CardResponse{}, "card_id = ?"},
		} {
			if errDelete := tx.Where(cleanup.where, id).Delete(cleanup.model).Error; errDelete != nil {
				return errDelete
			}
		}
		for _, table := range []string{"promo_code_cards", "package_cards"} {
			if errDelete := tx.Exec("DELETE FROM "+table+" WHERE card_id = ?", id).Error; errDelete != nil {
				return errDelete
			}
		}
		return nil
	})
}

// ListCards returns cards matching the title query, newest first.
func (s *Service) ListCards(ctx context.Context, opts ListOptions) ([]models.Card, int64, error) {
	offset, limit := opts.window()
	q := s.db.WithContext(ctx).Model(&models.Card{})
	if term := strings.TrimSpace(opts.Query); term != "" {
		q = dbutil.WhereContains(q, "title", term)
	}
	if opts.Active != nil {
		q = q.Where("active = ?", *opts.Active)
	}
	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, errCount
	}
	var cards []models.Card
	if errFind := q.Order("id DESC").Offset(offset).Limit(limit).Find(&cards).Error; errFind != nil {
		return nil, 0, errFind
	}
	return cards, total, nil
}

func applyCardInput(card *models.Card, in CardInput) error {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return apperr.Validation(apperr.CodeInvalidInput, "title is required")
		}
		card.Title = title
	}
	if in.Description != nil {
		card.Description = strings.TrimSpace(*in.Description)
	}
	if in.Answer != nil {
		card.Answer = strings.TrimSpace(*in.Answer)
	}
	if in.ImageURL != nil {
		card.ImageURL = strings.TrimSpace(*in.ImageURL)
	}
	if in.Difficulty != nil {
		difficulty := strings.ToLower(strings.TrimSpace(*in.Difficulty))
		if !models.ValidDifficulty(difficulty) {
			return apperr.Validation(apperr.CodeInvalidInput, "difficulty must be easy, medium or hard")
		}
		card.Difficulty = difficulty
	}
	if in.Tags != nil {
		tags := make([]string, 0, len(in.Tags))
		for _, tag := range in.Tags {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		raw, errMarshal := json.Marshal(tags)
		if errMarshal != nil {
			return errMarshal
		}
		card.Tags = datatypes.JSON(raw)
	}
	if in.Active != nil {
		card.Active = *in.Active
	}
	return nil
}
