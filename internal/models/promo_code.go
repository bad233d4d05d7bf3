package models

import "time"

// PromoCode grants a fixed set of cards a limited number of times.
type PromoCode struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Code        string     `gorm:"type:text;not null;uniqueIndex"` // Uppercase alphanumeric code.
	Description string     `gorm:"type:text"`                      // Operator notes.
	MaxUses     int        `gorm:"not null"`                       // Usage cap.
	CurrentUses int        `gorm:"not null;default:0"`             // Successful redemptions so far.
	ExpiresAt   *time.Time // Code expiry, if any.
	AccessDays  int        `gorm:"not null;default:0"` // Grant lifetime in days, 0 for perpetual.
	Active      bool       `gorm:"not null"`           // Whether the code can be redeemed.

	Cards []Card `gorm:"many2many:promo_code_cards;constraint:OnDelete:CASCADE"` // Cards granted on redemption.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// RemainingUses returns how many redemptions are left.
func (p PromoCode) RemainingUses() int {
	if p.CurrentUses >= p.MaxUses {
		return 0
	}
	return p.MaxUses - p.CurrentUses
}

// PromoRedemption records one successful redemption.
type PromoRedemption struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	PromoCodeID  uint64 `gorm:"not null;index"` // Redeemed code.
	UserID       uint64 `gorm:"not null;index"` // Redeeming user.
	CardsGranted int    `gorm:"not null"`       // Cards upserted by the redemption.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Redemption timestamp.
}
