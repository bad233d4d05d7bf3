package models

import (
	"time"

	"gorm.io/datatypes"
)

// Card difficulty levels.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Card is a single educational flashcard.
type Card struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Title       string         `gorm:"type:text;not null"`                  // Card title.
	Description string         `gorm:"type:text"`                           // Position or question text.
	Answer      string         `gorm:"type:text"`                           // Correct answer used to score responses.
	ImageURL    string         `gorm:"type:text"`                           // Position image reference.
	Difficulty  string         `gorm:"type:text;not null;default:'medium'"` // One of easy, medium, hard.
	Tags        datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"`    // Tag names in JSON.
	Active      bool           `gorm:"not null"`                            // Whether operators list the card as live.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ValidDifficulty reports whether the value is a known difficulty level.
func ValidDifficulty(value string) bool {
	switch value {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}
