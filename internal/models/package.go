package models

import "time"

// DefaultCurrency is used when a package has no explicit currency.
const DefaultCurrency = "RUB"

// Package is a sellable bundle of cards.
type Package struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string     `gorm:"type:text;not null"`               // Display name.
	Description string     `gorm:"type:text"`                        // Marketing description.
	Price       int64      `gorm:"not null"`                         // Price in minor currency units.
	Currency    string     `gorm:"type:text;not null;default:'RUB'"` // ISO currency code.
	ExpiresAt   *time.Time // End of sale, if any.
	AccessDays  int        `gorm:"not null;default:0"` // Grant lifetime in days, 0 for perpetual.
	Active      bool       `gorm:"not null"`           // Whether the package can be bought.

	Cards []Card `gorm:"many2many:package_cards;constraint:OnDelete:CASCADE"` // Cards granted on purchase.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Purchasable reports whether the package can be bought at the given instant.
func (p Package) Purchasable(now time.Time) bool {
	if !p.Active {
		return false
	}
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}
