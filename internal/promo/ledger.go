package promo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/catalog"
	dbutil "github.com/IlyaStepanov1104/Backgammon-sub000/internal/db"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// maxGenerateBatch caps how many codes one Generate call may create.
const maxGenerateBatch = 500

// CodeInput carries promo code fields. Nil pointers are left unchanged on update.
type CodeInput struct {
	Code         *string
	Description  *string
	MaxUses      *int
	ExpiresAt    *time.Time
	ClearExpires bool
	AccessDays   *int
	Active       *bool
	CardIDs      *[]uint64 // Replaces the card set when set.
}

// GenerateInput describes a batch of random codes sharing the same settings.
type GenerateInput struct {
	Count    int
	Prefix   string
	Length   int
	Template CodeInput
}

// ListOptions filters the admin promo code listing.
type ListOptions struct {
	Code   string
	Active *bool
	Offset int
	Limit  int
}

// Create stores a new promo code with its card set.
func (s *Service) Create(ctx context.Context, in CodeInput) (models.PromoCode, error) {
	if in.Code == nil {
		return models.PromoCode{}, apperr.Validation(apperr.CodeInvalidFormat, "code is required")
	}
	code, errNorm := NormalizeCode(*in.Code)
	if errNorm != nil {
		return models.PromoCode{}, errNorm
	}
	var created models.PromoCode
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		promo, errCreate := s.createTx(tx, code, in)
		if errCreate != nil {
			return errCreate
		}
		created = promo
		return nil
	})
	if errTx != nil {
		return models.PromoCode{}, errTx
	}
	log.WithFields(log.Fields{"promo": created.Code, "max_uses": created.MaxUses}).Info("promo: created")
	return s.Get(ctx, created.ID)
}

// Generate creates Count random codes with the template's settings.
func (s *Service) Generate(ctx context.Context, in GenerateInput) ([]models.PromoCode, error) {
	if in.Count <= 0 || in.Count > maxGenerateBatch {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "count must be between 1 and 500")
	}
	out := make([]models.PromoCode, 0, in.Count)
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for len(out) < in.Count {
			code, errGen := GenerateCode(in.Prefix, in.Length)
			if errGen != nil {
				return errGen
			}
			promo, errCreate := s.createTx(tx, code, in.Template)
			if apperr.CodeOf(errCreate) == apperr.CodeConflict {
				continue
			}
			if errCreate != nil {
				return errCreate
			}
			out = append(out, promo)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	log.Infof("promo: generated %d codes", len(out))
	return out, nil
}

// Update applies the non-nil fields of in.
func (s *Service) Update(ctx context.Context, id uint64, in CodeInput) (models.PromoCode, error) {
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var promo models.PromoCode
		if errFind := tx.First(&promo, id).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.NotFound(apperr.CodeNotFound, "promo code not found")
			}
			return errFind
		}
		if in.Code != nil {
			code, errNorm := NormalizeCode(*in.Code)
			if errNorm != nil {
				return errNorm
			}
			if code != promo.Code {
				if errUnique := ensureCodeFree(tx, code); errUnique != nil {
					return errUnique
				}
				promo.Code = code
			}
		}
		if errApply := applyCodeInput(&promo, in); errApply != nil {
			return errApply
		}
		if promo.MaxUses < promo.CurrentUses {
			return apperr.Validation(apperr.CodeInvalidInput, "max_uses cannot be below current uses")
		}
		if errSave := tx.Omit("Cards").Save(&promo).Error; errSave != nil {
			return errSave
		}
		if in.CardIDs != nil {
			return replaceCards(tx, &promo, *in.CardIDs)
		}
		return nil
	})
	if errTx != nil {
		return models.PromoCode{}, errTx
	}
	return s.Get(ctx, id)
}

// Delete removes a code that has never been redeemed.
func (s *Service) Delete(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var promo models.PromoCode
		if errFind := tx.First(&promo, id).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.NotFound(apperr.CodeNotFound, "promo code not found")
			}
			return errFind
		}
		if promo.CurrentUses > 0 {
			return apperr.Conflict(apperr.CodePromoInUse, "promo code has been redeemed, deactivate it instead")
		}
		if errClear := tx.Model(&promo).Association("Cards").Clear(); errClear != nil {
			return errClear
		}
		res := tx.Where("id = ? AND current_uses = 0", id).Delete(&models.PromoCode{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict(apperr.CodePromoInUse, "promo code has been redeemed, deactivate it instead")
		}
		return nil
	})
}

// Get loads a promo code with its cards.
func (s *Service) Get(ctx context.Context, id uint64) (models.PromoCode, error) {
	var promo models.PromoCode
	if errFind := s.db.WithContext(ctx).Preload("Cards").First(&promo, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.PromoCode{}, apperr.NotFound(apperr.CodeNotFound, "promo code not found")
		}
		return models.PromoCode{}, errFind
	}
	return promo, nil
}

// List returns promo codes matching the filters, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]models.PromoCode, int64, error) {
	offset, limit := opts.Offset, opts.Limit
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = catalog.DefaultListLimit
	}
	if limit > catalog.MaxListLimit {
		limit = catalog.MaxListLimit
	}

	q := s.db.WithContext(ctx).Model(&models.PromoCode{})
	if term := strings.TrimSpace(opts.Code); term != "" {
		q = dbutil.WhereContains(q, "code", term)
	}
	if opts.Active != nil {
		q = q.Where("active = ?", *opts.Active)
	}
	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, errCount
	}
	var rows []models.PromoCode
	if errFind := q.Preload("Cards").Order("id DESC").Offset(offset).Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, 0, errFind
	}
	return rows, total, nil
}

func (s *Service) createTx(tx *gorm.DB, code string, in CodeInput) (models.PromoCode, error) {
	promo := models.PromoCode{Code: code, MaxUses: 1, Active: true}
	if errApply := applyCodeInput(&promo, in); errApply != nil {
		return models.PromoCode{}, errApply
	}
	if errUnique := ensureCodeFree(tx, code); errUnique != nil {
		return models.PromoCode{}, errUnique
	}
	var cards []models.Card
	if in.CardIDs != nil {
		loaded, errLoad := catalog.LoadCards(tx, *in.CardIDs)
		if errLoad != nil {
			return models.PromoCode{}, errLoad
		}
		cards = loaded
	}
	if errCreate := tx.Omit("Cards").Create(&promo).Error; errCreate != nil {
		return models.PromoCode{}, errCreate
	}
	if len(cards) > 0 {
		if errAssoc := tx.Model(&promo).Association("Cards").Replace(cards); errAssoc != nil {
			return models.PromoCode{}, errAssoc
		}
	}
	return promo, nil
}

func ensureCodeFree(tx *gorm.DB, code string) error {
	var count int64
	if errCount := tx.Model(&models.PromoCode{}).Where("code = ?", code).Count(&count).Error; errCount != nil {
		return errCount
	}
	if count > 0 {
		return apperr.Conflict(apperr.CodeConflict, "promo code already exists")
	}
	return nil
}

func replaceCards(tx *gorm.DB, promo *models.PromoCode, ids []uint64) error {
	cards, errLoad := catalog.LoadCards(tx, ids)
	if errLoad != nil {
		return errLoad
	}
	if len(cards) == 0 {
		return tx.Model(promo).Association("Cards").Clear()
	}
	return tx.Model(promo).Association("Cards").Replace(cards)
}

func applyCodeInput(promo *models.PromoCode, in CodeInput) error {
	if in.Description != nil {
		promo.Description = strings.TrimSpace(*in.Description)
	}
	if in.MaxUses != nil {
		if *in.MaxUses < 1 {
			return apperr.Validation(apperr.CodeInvalidInput, "max_uses must be at least 1")
		}
		promo.MaxUses = *in.MaxUses
	}
	if in.ClearExpires {
		promo.ExpiresAt = nil
	} else if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		promo.ExpiresAt = &exp
	}
	if in.AccessDays != nil {
		if *in.AccessDays < 0 {
			return apperr.Validation(apperr.CodeInvalidInput, "access_days cannot be negative")
		}
		promo.AccessDays = *in.AccessDays
	}
	if in.Active != nil {
		promo.Active = *in.Active
	}
	return nil
}
