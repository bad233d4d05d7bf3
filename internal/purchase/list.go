package purchase

import (
	"context"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
)

// ListFilter narrows the admin purchase listing.
type ListFilter struct {
	Status string
	UserID uint64
	Offset int
	Limit  int
}

// List returns purchases newest first together with the total match count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]models.Purchase, int64, error) {
	offset, limit := filter.Offset, filter.Limit
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&models.Purchase{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		q = q.Where("status = ?", status)
	}
	if filter.UserID > 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, errCount
	}
	var rows []models.Purchase
	if errFind := q.Preload("Package").Preload("User").Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, 0, errFind
	}
	return rows, total, nil
}

// ListForUser returns a user's purchases newest first.
func (s *Service) ListForUser(ctx context.Context, userID uint64) ([]models.Purchase, error) {
	var rows []models.Purchase
	errFind := s.db.WithContext(ctx).
		Preload("Package").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, errFind
}
