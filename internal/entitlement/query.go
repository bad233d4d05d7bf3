package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/settings"
	"gorm.io/gorm"
)

// DefaultPageLimit is used when a listing does not ask for a page size.
const DefaultPageLimit = 20

// accessibleCondition selects rows that grant access at a given instant.
const accessibleCondition = "active = ? AND (expires_at IS NULL OR expires_at > ?)"

// Filter narrows ListAccessibleCards.
type Filter struct {
	Solved        *bool // Nil for all, otherwise solved or unsolved only.
	FavoritesOnly bool  // Restrict to favorite cards.
	Offset        int
	Limit         int
}

// AccessibleCard is one card visible to a user together with its access state.
type AccessibleCard struct {
	Card       models.Card
	GrantedAt  time.Time
	ExpiresAt  *time.Time
	Source     string
	IsFavorite bool
	Solved     bool
}

// Page is a window of accessible cards.
type Page struct {
	Items  []AccessibleCard
	Total  int64
	Offset int
	Limit  int
}

// ListAccessibleCards returns the cards the user may currently view.
func (s *Service) ListAccessibleCards(ctx context.Context, userID uint64, filter Filter) (Page, error) {
	offset, limit := s.normalizePaging(filter.Offset, filter.Limit)
	page := Page{Items: []AccessibleCard{}, Offset: offset, Limit: limit}
	now := s.now()

	base := s.db.WithContext(ctx).
		Model(&models.CardAccess{}).
		Where("card_accesses.user_id = ?", userID).
		Where("card_accesses.active = ? AND (card_accesses.expires_at IS NULL OR card_accesses.expires_at > ?)", true, now)
	if filter.FavoritesOnly {
		base = base.Joins("JOIN favorites ON favorites.card_id = card_accesses.card_id AND favorites.user_id = card_accesses.user_id")
	}
	if filter.Solved != nil {
		solvedExpr := "EXISTS (SELECT 1 FROM card_responses r WHERE r.user_id = card_accesses.user_id AND r.card_id = card_accesses.card_id AND r.is_correct = ?)"
		if !*filter.Solved {
			solvedExpr = "NOT " + solvedExpr
		}
		base = base.Where(solvedExpr, true)
	}

	if errCount := base.Count(&page.Total).Error; errCount != nil {
		return page, errCount
	}
	if page.Total == 0 {
		return page, nil
	}

	order := "card_accesses.granted_at DESC, card_accesses.card_id DESC"
	if filter.FavoritesOnly {
		order = "favorites.created_at DESC, card_accesses.card_id DESC"
	}
	var rows []models.CardAccess
	if errFind := base.
		Select("card_accesses.*").
		Preload("Card").
		Order(order).
		Offset(offset).
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return page, errFind
	}

	cardIDs := make([]uint64, 0, len(rows))
	for _, row := range rows {
		cardIDs = append(cardIDs, row.CardID)
	}
	favorites, errFav := s.favoriteSet(ctx, userID, cardIDs)
	if errFav != nil {
		return page, errFav
	}
	solved, errSolved := s.solvedSet(ctx, userID, cardIDs)
	if errSolved != nil {
		return page, errSolved
	}

	for _, row := range rows {
		if row.Card == nil {
			continue
		}
		_, isFavorite := favorites[row.CardID]
		_, isSolved := solved[row.CardID]
		page.Items = append(page.Items, AccessibleCard{
			Card:       *row.Card,
			GrantedAt:  row.GrantedAt,
			ExpiresAt:  row.ExpiresAt,
			Source:     row.Source,
			IsFavorite: isFavorite,
			Solved:     isSolved,
		})
	}
	return page, nil
}

// GetAccessibleCard returns one card when the user may view it.
func (s *Service) GetAccessibleCard(ctx context.Context, userID, cardID uint64) (AccessibleCard, error) {
	var row models.CardAccess
	errFind := s.db.WithContext(ctx).
		Preload("Card").
		Where("user_id = ? AND card_id = ?", userID, cardID).
		Where(accessibleCondition, true, s.now()).
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return AccessibleCard{}, apperr.NotFound(apperr.CodeNotFound, "card not found")
		}
		return AccessibleCard{}, errFind
	}
	if row.Card == nil {
		return AccessibleCard{}, apperr.NotFound(apperr.CodeNotFound, "card not found")
	}

	ids := []uint64{cardID}
	favorites, errFav := s.favoriteSet(ctx, userID, ids)
	if errFav != nil {
		return AccessibleCard{}, errFav
	}
	solved, errSolved := s.solvedSet(ctx, userID, ids)
	if errSolved != nil {
		return AccessibleCard{}, errSolved
	}
	_, isFavorite := favorites[cardID]
	_, isSolved := solved[cardID]
	return AccessibleCard{
		Card:       *row.Card,
		GrantedAt:  row.GrantedAt,
		ExpiresAt:  row.ExpiresAt,
		Source:     row.Source,
		IsFavorite: isFavorite,
		Solved:     isSolved,
	}, nil
}

// CountAccessible returns how many cards the user may currently view.
func (s *Service) CountAccessible(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	errCount := s.db.WithContext(ctx).
		Model(&models.CardAccess{}).
		Where("user_id = ?", userID).
		Where(accessibleCondition, true, s.now()).
		Count(&count).Error
	return count, errCount
}

// ListUserAccess returns every access row of a user, including inactive ones.
func (s *Service) ListUserAccess(ctx context.Context, userID uint64) ([]models.CardAccess, error) {
	var rows []models.CardAccess
	errFind := s.db.WithContext(ctx).
		Preload("Card").
		Where("user_id = ?", userID).
		Order("granted_at DESC, card_id DESC").
		Find(&rows).Error
	return rows, errFind
}

func (s *Service) normalizePaging(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	maxLimit := settings.DefaultCardsPageMaxLimit
	if s.settings != nil {
		maxLimit = s.settings.Int(settings.CardsPageMaxLimitKey, settings.DefaultCardsPageMaxLimit)
	}
	if maxLimit < 1 {
		maxLimit = settings.DefaultCardsPageMaxLimit
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit
}

func (s *Service) favoriteSet(ctx context.Context, userID uint64, cardIDs []uint64) (map[uint64]struct{}, error) {
	out := make(map[uint64]struct{})
	if len(cardIDs) == 0 {
		return out, nil
	}
	var ids []uint64
	if errPluck := s.db.WithContext(ctx).
		Model(&models.Favorite{}).
		Where("user_id = ? AND card_id IN ?", userID, cardIDs).
		Pluck("card_id", &ids).Error; errPluck != nil {
		return nil, errPluck
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *Service) solvedSet(ctx context.Context, userID uint64, cardIDs []uint64) (map[uint64]struct{}, error) {
	out := make(map[uint64]struct{})
	if len(cardIDs) == 0 {
		return out, nil
	}
	var ids []uint64
	if errPluck := s.db.WithContext(ctx).
		Model(&models.CardResponse{}).
		Distinct("card_id").
		Where("user_id = ? AND card_id IN ? AND is_correct = ?", userID, cardIDs, true).
		Pluck("card_id", &ids).Error; errPluck != nil {
		return nil, errPluck
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
