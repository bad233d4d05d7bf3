package entitlement

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/retry"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Service manages card access rows.
type Service struct {
	db       *gorm.DB
	retry    retry.Policy
	settings *settings.Store
	now      func() time.Time
}

// NewService constructs an entitlement service.
func NewService(db *gorm.DB, policy retry.Policy, store *settings.Store) *Service {
	return &Service{
		db:       db,
		retry:    policy,
		settings: store,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HasAccess reports whether the card is currently accessible to the user.
func (s *Service) HasAccess(ctx context.Context, userID, cardID uint64) (bool, error) {
	var count int64
	errCount := s.db.WithContext(ctx).
		Model(&models.CardAccess{}).
		Where("user_id = ? AND card_id = ?", userID, cardID).
		Where(accessibleCondition, true, s.now()).
		Count(&count).Error
	if errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// AdminGrant grants cards to a user directly, bypassing promo codes and purchases.
func (s *Service) AdminGrant(ctx context.Context, userID uint64, cardIDs []uint64, expiresAt *time.Time) (int, error) {
	ids := UniqueIDs(cardIDs)
	if len(ids) == 0 {
		return 0, apperr.Validation(apperr.CodeInvalidInput, "card_ids is required")
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return 0, apperr.Validation(apperr.CodeInvalidInput, "expires_at must be in the future")
	}

	var granted int
	errRetry := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var user models.User
			if errFind := tx.Select("id").First(&user, userID).Error; errFind != nil {
				if errors.Is(errFind, gorm.ErrRecordNotFound) {
					return apperr.NotFound(apperr.CodeNotFound, "user not found")
				}
				return errFind
			}
			var found int64
			if errCount := tx.Model(&models.Card{}).Where("id IN ?", ids).Count(&found).Error; errCount != nil {
				return errCount
			}
			if found != int64(len(ids)) {
				return apperr.NotFound(apperr.CodeNotFound, "card not found")
			}

			n, errGrant := Grant(tx, userID, ids, GrantOptions{
				ExpiresAt: expiresAt,
				GrantedAt: s.now(),
				Source:    models.AccessSourceAdmin,
			})
			if errGrant != nil {
				return errGrant
			}
			granted = n
			return nil
		})
	})
	if errRetry != nil {
		return 0, errRetry
	}
	log.WithFields(log.Fields{"user_id": userID, "cards": granted}).Info("entitlement: admin grant")
	return granted, nil
}

// RevokeAccess deactivates one card, or every card when cardID is nil.
// With purge set and no card, the user's rows are deleted instead.
// Revoking access that is already inactive or missing succeeds.
func (s *Service) RevokeAccess(ctx context.Context, userID uint64, cardID *uint64, purge bool) (int64, error) {
	var affected int64
	errRetry := s.retry.Do(ctx, func(ctx context.Context) error {
		q := s.db.WithContext(ctx).Where("user_id = ?", userID)
		if cardID != nil {
			q = q.Where("card_id = ?", *cardID)
		}
		var res *gorm.DB
		if purge && cardID == nil {
			res = q.Delete(&models.CardAccess{})
		} else {
			res = q.Model(&models.CardAccess{}).Where("active = ?", true).Update("active", false)
		}
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	if errRetry != nil {
		return 0, errRetry
	}

	target := "all"
	if cardID != nil {
		target = strconv.FormatUint(*cardID, 10)
	}
	log.WithFields(log.Fields{"user_id": userID, "card": target, "purge": purge, "rows": affected}).Info("entitlement: revoke")
	return affected, nil
}
