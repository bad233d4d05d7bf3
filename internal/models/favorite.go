package models

import "time"

// Favorite marks a card as a user's favorite.
type Favorite struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_favorite_user_card,priority:1"` // Owning user.
	CardID uint64 `gorm:"not null;uniqueIndex:idx_favorite_user_card,priority:2"` // Favorite card.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// CardResponse logs a user's answer to a card.
type CardResponse struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID    uint64 `gorm:"not null;index:idx_card_response_user_card,priority:1"` // Answering user.
	CardID    uint64 `gorm:"not null;index:idx_card_response_user_card,priority:2"` // Answered card.
	Answer    string `gorm:"type:text;not null"`                                    // Submitted answer.
	IsCorrect bool   `gorm:"not null;default:false"`                                // Whether it matched the card answer.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Submission timestamp.
}
