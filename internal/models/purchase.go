package models

import (
	"time"

	"gorm.io/datatypes"
)

// Purchase statuses.
const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusSucceeded = "succeeded"
	PurchaseStatusFailed    = "failed"
	PurchaseStatusCompleted = "completed"
)

// Purchase records one payment attempt for a package.
type Purchase struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID    uint64   `gorm:"not null;index"`       // Buyer.
	User      *User    `gorm:"foreignKey:UserID"`    // Buyer record.
	PackageID uint64   `gorm:"not null;index"`       // Purchased package.
	Package   *Package `gorm:"foreignKey:PackageID"` // Package record.

	Amount   int64  `gorm:"not null"`           // Price captured at initiation.
	Currency string `gorm:"type:text;not null"` // ISO currency code.

	Provider   string  `gorm:"type:text;not null"`    // Gateway name.
	PaymentID  *string `gorm:"type:text;uniqueIndex"` // Gateway payment identifier.
	PaymentURL string  `gorm:"type:text"`             // Redirect or confirmation handle.

	Status        string         `gorm:"type:text;not null;index"` // pending, succeeded, failed, completed.
	FailureReason string         `gorm:"type:text"`                // Why the purchase failed.
	Metadata      datatypes.JSON `gorm:"type:jsonb"`               // Gateway payload snapshot.

	ConfirmedAt *time.Time // Gateway confirmation time.
	CreatedAt   time.Time  `gorm:"not null;autoCreateTime;index"` // Initiation timestamp.
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}

// SucceededStatuses lists the terminal success statuses.
var SucceededStatuses = []string{PurchaseStatusSucceeded, PurchaseStatusCompleted}

// IsSucceeded reports whether the purchase already granted its cards.
func (p Purchase) IsSucceeded() bool {
	return p.Status == PurchaseStatusSucceeded || p.Status == PurchaseStatusCompleted
}
