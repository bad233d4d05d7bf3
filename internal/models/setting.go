package models

import (
	"encoding/json"
	"time"
)

// Setting stores one runtime-tunable value as JSON.
type Setting struct {
	Key       string          `gorm:"type:varchar(255);primaryKey"`                      // Setting key.
	Value     json.RawMessage `gorm:"type:jsonb"`                                        // JSON-encoded value.
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime;default:CURRENT_TIMESTAMP"` // Last update timestamp.
}
