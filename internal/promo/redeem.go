package promo

import (
	"context"
	"errors"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/entitlement"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/retry"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Service validates and redeems promo codes and manages the ledger.
type Service struct {
	db    *gorm.DB
	retry retry.Policy
	now   func() time.Time
}

// NewService constructs a promo service.
func NewService(db *gorm.DB, policy retry.Policy) *Service {
	return &Service{db: db, retry: policy, now: func() time.Time { return time.Now().UTC() }}
}

// Validation is the outcome of a successful Validate.
type Validation struct {
	PromoCode     models.PromoCode
	CardIDs       []uint64
	RemainingUses int
}

// Result is the outcome of a successful Redeem.
type Result struct {
	Code          string
	CardsGranted  int
	RemainingUses int
	ExpiresAt     *time.Time
}

// Validate checks that a code is currently redeemable without changing anything.
func (s *Service) Validate(ctx context.Context, rawCode string, userID uint64) (Validation, error) {
	return s.validate(s.db.WithContext(ctx), rawCode, userID)
}

// Redeem grants the code's cards to the user and consumes one use.
// The increment, the grants and the audit row commit together or not at all.
func (s *Service) Redeem(ctx context.Context, rawCode string, userID uint64) (Result, error) {
	var result Result
	errRetry := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			v, errValidate := s.validate(tx, rawCode, userID)
			if errValidate != nil {
				return errValidate
			}
			if len(v.CardIDs) == 0 {
				return apperr.Configuration(apperr.CodeNoCards, "promo code has no cards")
			}

			res := tx.Model(&models.PromoCode{}).
				Where("id = ? AND active = ? AND current_uses < max_uses", v.PromoCode.ID, true).
				UpdateColumn("current_uses", gorm.Expr("current_uses + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return apperr.Conflict(apperr.CodeLimitReached, "promo code usage limit reached")
			}

			now := s.now()
			expiresAt := entitlement.ExpiryFor(now, v.PromoCode.AccessDays)
			granted, errGrant := entitlement.Grant(tx, userID, v.CardIDs, entitlement.GrantOptions{
				ExpiresAt: expiresAt,
				GrantedAt: now,
				Source:    models.AccessSourcePromo,
				SourceRef: v.PromoCode.Code,
			})
			if errGrant != nil {
				return errGrant
			}

			audit := models.PromoRedemption{PromoCodeID: v.PromoCode.ID, UserID: userID, CardsGranted: granted}
			if errAudit := tx.Create(&audit).Error; errAudit != nil {
				return errAudit
			}

			var after models.PromoCode
			if errReload := tx.Select("id", "current_uses", "max_uses").First(&after, v.PromoCode.ID).Error; errReload != nil {
				return errReload
			}

			result = Result{
				Code:          v.PromoCode.Code,
				CardsGranted:  granted,
				RemainingUses: after.RemainingUses(),
				ExpiresAt:     expiresAt,
			}
			return nil
		})
	})
	if errRetry != nil {
		log.WithFields(log.Fields{"user_id": userID, "code": apperr.CodeOf(errRetry)}).WithError(errRetry).Debug("promo: redeem rejected")
		return Result{}, errRetry
	}
	log.WithFields(log.Fields{"user_id": userID, "promo": result.Code, "cards": result.CardsGranted}).Info("promo: redeemed")
	return result, nil
}

func (s *Service) validate(conn *gorm.DB, rawCode string, userID uint64) (Validation, error) {
	if userID == 0 {
		return Validation{}, apperr.Validation(apperr.CodeInvalidInput, "user is required")
	}
	code, errNorm := NormalizeCode(rawCode)
	if errNorm != nil {
		return Validation{}, errNorm
	}

	var promo models.PromoCode
	if errFind := conn.Preload("Cards").Where("code = ?", code).First(&promo).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Validation{}, apperr.NotFound(apperr.CodeNotFound, "promo code not found")
		}
		return Validation{}, errFind
	}
	if !promo.Active {
		return Validation{}, apperr.Conflict(apperr.CodeInactive, "promo code is inactive")
	}
	if promo.ExpiresAt != nil && !promo.ExpiresAt.After(s.now()) {
		return Validation{}, apperr.Conflict(apperr.CodeExpired, "promo code has expired")
	}
	if promo.CurrentUses >= promo.MaxUses {
		return Validation{}, apperr.Conflict(apperr.CodeLimitReached, "promo code usage limit reached")
	}

	ids := make([]uint64, 0, len(promo.Cards))
	for _, card := range promo.Cards {
		ids = append(ids, card.ID)
	}
	return Validation{PromoCode: promo, CardIDs: ids, RemainingUses: promo.RemainingUses()}, nil
}
