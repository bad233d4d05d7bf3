package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	dbutil "github.com/IlyaStepanov1104/Backgammon-sub000/internal/db"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"gorm.io/gorm"
)

// PackageInput carries package fields. Nil pointers are left unchanged on update.
type PackageInput struct {
	Name         *string
	Description  *string
	Price        *int64
	Currency     *string
	ExpiresAt    *time.Time
	ClearExpires bool
	AccessDays   *int
	Active       *bool
	CardIDs      *[]uint64 // Replaces the card set when set.
}

// CreatePackage validates and stores a new package with its card set.
func (s *Service) CreatePackage(ctx context.Context, in PackageInput) (models.Package, error) {
	pkg := models.Package{Currency: models.DefaultCurrency, Active: true}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return models.Package{}, apperr.Validation(apperr.CodeInvalidInput, "name is required")
	}
	if in.Price == nil {
		return models.Package{}, apperr.Validation(apperr.CodeInvalidInput, "price is required")
	}
	if errApply := applyPackageInput(&pkg, in); errApply != nil {
		return models.Package{}, errApply
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cards []models.Card
		if in.CardIDs != nil {
			loaded, errLoad := LoadCards(tx, *in.CardIDs)
			if errLoad != nil {
				return errLoad
			}
			cards = loaded
		}
		if errCreate := tx.Omit("Cards").Create(&pkg).Error; errCreate != nil {
			return errCreate
		}
		if len(cards) > 0 {
			if errAssoc := tx.Model(&pkg).Association("Cards").Replace(cards); errAssoc != nil {
				return errAssoc
			}
		}
		return nil
	})
	if errTx != nil {
		return models.Package{}, errTx
	}
	return s.GetPackage(ctx, pkg.ID)
}

// UpdatePackage applies the non-nil fields of in and replaces the card set when given.
func (s *Service) UpdatePackage(ctx context.Context, id uint64, in PackageInput) (models.Package, error) {
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pkg models.Package
		if errFind := tx.First(&pkg, id).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.NotFound(apperr.CodePackageNotFound, "package not found")
			}
			return errFind
		}
		if errApply := applyPackageInput(&pkg, in); errApply != nil {
			return errApply
		}
		if errSave := tx.Omit("Cards").Save(&pkg).Error; errSave != nil {
			return errSave
		}
		if in.CardIDs != nil {
			cards, errLoad := LoadCards(tx, *in.CardIDs)
			if errLoad != nil {
				return errLoad
			}
			if len(cards) == 0 {
				return tx.Model(&pkg).Association("Cards").Clear()
			}
			return tx.Model(&pkg).Association("Cards").Replace(cards)
		}
		return nil
	})
	if errTx != nil {
		return models.Package{}, errTx
	}
	return s.GetPackage(ctx, id)
}

// GetPackage loads a package with its cards.
func (s *Service) GetPackage(ctx context.Context, id uint64) (models.Package, error) {
	var pkg models.Package
	if errFind := s.db.WithContext(ctx).Preload("Cards").First(&pkg, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Package{}, apperr.NotFound(apperr.CodePackageNotFound, "package not found")
		}
		return models.Package{}, errFind
	}
	return pkg, nil
}

// DeletePackage removes a package that was never bought.
func (s *Service) DeletePackage(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pkg models.Package
		if errFind := tx.First(&pkg, id).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.NotFound(apperr.CodePackageNotFound, "package not found")
			}
			return errFind
		}
		var purchases int64
		if errCount := tx.Model(&models.Purchase{}).Where("package_id = ?", id).Count(&purchases).Error; errCount != nil {
			return errCount
		}
		if purchases > 0 {
			return apperr.Conflict(apperr.CodeConflict, "package has purchases, deactivate it instead")
		}
		if errClear := tx.Model(&pkg).Association("Cards").Clear(); errClear != nil {
			return errClear
		}
		return tx.Delete(&pkg).Error
	})
}

// ListPackages returns packages for the admin listing.
func (s *Service) ListPackages(ctx context.Context, opts ListOptions) ([]models.Package, int64, error) {
	offset, limit := opts.window()
	q := s.db.WithContext(ctx).Model(&models.Package{})
	if term := strings.TrimSpace(opts.Query); term != "" {
		q = dbutil.WhereContains(q, "name", term)
	}
	if opts.Active != nil {
		q = q.Where("active = ?", *opts.Active)
	}
	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, errCount
	}
	var pkgs []models.Package
	if errFind := q.Preload("Cards").Order("id DESC").Offset(offset).Limit(limit).Find(&pkgs).Error; errFind != nil {
		return nil, 0, errFind
	}
	return pkgs, total, nil
}

// ListPurchasable returns the packages that can be bought now, cheapest first.
func (s *Service) ListPurchasable(ctx context.Context) ([]models.Package, error) {
	var pkgs []models.Package
	errFind := s.db.WithContext(ctx).
		Preload("Cards").
		Where("active = ? AND (expires_at IS NULL OR expires_at > ?)", true, s.now()).
		Order("price ASC, id ASC").
		Find(&pkgs).Error
	return pkgs, errFind
}

func applyPackageInput(pkg *models.Package, in PackageInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return apperr.Validation(apperr.CodeInvalidInput, "name is required")
		}
		pkg.Name = name
	}
	if in.Description != nil {
		pkg.Description = strings.TrimSpace(*in.Description)
	}
	if in.Price != nil {
		if *in.Price <= 0 {
			return apperr.Validation(apperr.CodeInvalidInput, "price must be positive")
		}
		pkg.Price = *in.Price
	}
	if in.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*in.Currency))
		if len(currency) != 3 {
			return apperr.Validation(apperr.CodeInvalidInput, "currency must be a 3-letter code")
		}
		pkg.Currency = currency
	}
	if in.ClearExpires {
		pkg.ExpiresAt = nil
	} else if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		pkg.ExpiresAt = &exp
	}
	if in.AccessDays != nil {
		if *in.AccessDays < 0 {
			return apperr.Validation(apperr.CodeInvalidInput, "access_days cannot be negative")
		}
		pkg.AccessDays = *in.AccessDays
	}
	if in.Active != nil {
		pkg.Active = *in.Active
	}
	return nil
}
