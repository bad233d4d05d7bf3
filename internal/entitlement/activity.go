package entitlement

import (
	"context"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"gorm.io/gorm/clause"
)

// SetFavorite marks or unmarks a card as favorite. The card must be accessible.
func (s *Service) SetFavorite(ctx context.Context, userID, cardID uint64, favorite bool) error {
	if err := s.requireAccess(ctx, userID, cardID); err != nil {
		return err
	}
	db := s.db.WithContext(ctx)
	if !favorite {
		return db.Where("user_id = ? AND card_id = ?", userID, cardID).Delete(&models.Favorite{}).Error
	}
	row := models.Favorite{UserID: userID, CardID: cardID}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// RecordResponse logs an answer and reports whether it was correct.
func (s *Service) RecordResponse(ctx context.Context, userID, cardID uint64, answer string) (models.CardResponse, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return models.CardResponse{}, apperr.Validation(apperr.CodeInvalidInput, "answer is required")
	}
	item, errGet := s.GetAccessibleCard(ctx, userID, cardID)
	if errGet != nil {
		return models.CardResponse{}, errGet
	}
	row := models.CardResponse{
		UserID:    userID,
		CardID:    cardID,
		Answer:    answer,
		IsCorrect: AnswerMatches(item.Card.Answer, answer),
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return models.CardResponse{}, errCreate
	}
	return row, nil
}

// AnswerMatches compares answers ignoring case and surrounding whitespace.
func AnswerMatches(expected, given string) bool {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return false
	}
	return strings.EqualFold(expected, strings.TrimSpace(given))
}

func (s *Service) requireAccess(ctx context.Context, userID, cardID uint64) error {
	ok, errAccess := s.HasAccess(ctx, userID, cardID)
	if errAccess != nil {
		return errAccess
	}
	if !ok {
		return apperr.NotFound(apperr.CodeNotFound, "card not found")
	}
	return nil
}
