package models

import "time"

// Grant sources recorded on card access rows.
const (
	AccessSourcePromo    = "promo"
	AccessSourcePurchase = "purchase"
	AccessSourceAdmin    = "admin"
)

// CardAccess is the entitlement of a user to view a card.
// At most one row exists per (user, card).
type CardAccess struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_card_access_user_card,priority:1"`       // Owning user.
	User   *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`                   // Owning user record.
	CardID uint64 `gorm:"not null;uniqueIndex:idx_card_access_user_card,priority:2;index"` // Target card.
	Card   *Card  `gorm:"foreignKey:CardID;constraint:OnDelete:CASCADE"`                   // Target card record.

	Active    bool       `gorm:"not null;default:true"`         // Whether the grant is in force.
	ExpiresAt *time.Time `gorm:"index"`                         // Expiry, nil for perpetual access.
	GrantedAt time.Time  `gorm:"not null;index"`                // Time of the latest grant.
	Source    string     `gorm:"type:text;not null"`            // promo, purchase or admin.
	SourceRef string     `gorm:"type:text;not null;default:''"` // Code or purchase reference.
}

// TableName pins the table name.
func (CardAccess) TableName() string { return "card_accesses" }

// Accessible reports whether the row grants access at the given instant.
func (a CardAccess) Accessible(now time.Time) bool {
	if !a.Active {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}
