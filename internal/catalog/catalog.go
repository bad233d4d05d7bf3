// Package catalog manages cards and the packages that bundle them.
package catalog

import (
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/entitlement"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"gorm.io/gorm"
)

// DefaultListLimit is the admin listing page size when none is given.
const DefaultListLimit = 20

// MaxListLimit caps admin listing page sizes.
const MaxListLimit = 200

// Service provides card and package CRUD.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs a catalog service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// ListOptions pages admin listings.
type ListOptions struct {
	Query  string
	Active *bool
	Offset int
	Limit  int
}

func (o ListOptions) window() (int, int) {
	offset, limit := o.Offset, o.Limit
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return offset, limit
}

// LoadCards returns the cards with the given ids, failing when any is missing.
func LoadCards(tx *gorm.DB, ids []uint64) ([]models.Card, error) {
	ids = entitlement.UniqueIDs(ids)
	if len(ids) == 0 {
		return []models.Card{}, nil
	}
	var cards []models.Card
	if errFind := tx.Where("id IN ?", ids).Order("id ASC").Find(&cards).Error; errFind != nil {
		return nil, errFind
	}
	if len(cards) != len(ids) {
		return nil, apperr.NotFound(apperr.CodeNotFound, "card not found")
	}
	return cards, nil
}
