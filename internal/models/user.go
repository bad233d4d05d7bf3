package models

import "time"

// User represents a Telegram user known to the platform.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TelegramID int64  `gorm:"not null;uniqueIndex"` // Telegram numeric identity.
	Username   string `gorm:"type:text"`            // Telegram handle without "@".
	FirstName  string `gorm:"type:text"`            // Display first name.
	LastName   string `gorm:"type:text"`            // Display last name.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // First contact timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last contact timestamp.
}

// DisplayName returns the best human-readable name for the user.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	default:
		return ""
	}
}
