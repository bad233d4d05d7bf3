package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// snapshot holds the in-memory setting values.
type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

// Store keeps an atomically swapped snapshot of DB-backed settings.
type Store struct {
	db      *gorm.DB
	current atomic.Pointer[snapshot]
}

// NewStore creates an empty store backed by db.
func NewStore(db *gorm.DB) *Store {
	s := &Store{db: db}
	s.current.Store(&snapshot{values: map[string]json.RawMessage{}})
	return s
}

// Refresh reloads all settings from the database.
func (s *Store) Refresh(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("settings: nil db")
	}

	var rows []models.Setting
	if errFind := s.db.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return errFind
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = append(json.RawMessage(nil), row.Value...)
		if row.UpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = row.UpdatedAt.UTC()
		}
	}
	s.current.Store(&snapshot{updatedAt: maxUpdatedAt, values: values})
	return nil
}

// Set persists a raw JSON value and refreshes the snapshot.
func (s *Store) Set(ctx context.Context, key string, value json.RawMessage) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("settings: empty key")
	}
	if !json.Valid(value) {
		return errors.New("settings: value is not valid json")
	}
	row := models.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	if errSave := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error; errSave != nil {
		return errSave
	}
	return s.Refresh(ctx)
}

// UpdatedAt returns the newest update time among loaded settings.
func (s *Store) UpdatedAt() time.Time {
	return s.load().updatedAt
}

// Values returns a copy of all loaded settings.
func (s *Store) Values() map[string]json.RawMessage {
	snap := s.load()
	out := make(map[string]json.RawMessage, len(snap.values))
	for k, v := range snap.values {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Raw returns the raw JSON value for key.
func (s *Store) Raw(key string) (json.RawMessage, bool) {
	val, ok := s.load().values[strings.TrimSpace(key)]
	if !ok || val == nil {
		return nil, false
	}
	return append(json.RawMessage(nil), val...), true
}

// Int returns an integer setting or def when missing or malformed.
// Numbers stored as JSON strings are accepted.
func (s *Store) Int(key string, def int) int {
	raw, ok := s.Raw(key)
	if !ok {
		return def
	}
	raw = bytes.TrimSpace(raw)
	var n int
	if errUnmarshal := json.Unmarshal(raw, &n); errUnmarshal == nil {
		return n
	}
	var str string
	if errUnmarshal := json.Unmarshal(raw, &str); errUnmarshal == nil {
		var parsed int
		if errParse := json.Unmarshal([]byte(strings.TrimSpace(str)), &parsed); errParse == nil {
			return parsed
		}
	}
	return def
}

// String returns a string setting or def when missing or empty.
func (s *Store) String(key, def string) string {
	raw, ok := s.Raw(key)
	if !ok {
		return def
	}
	var str string
	if errUnmarshal := json.Unmarshal(raw, &str); errUnmarshal != nil || strings.TrimSpace(str) == "" {
		return def
	}
	return str
}

func (s *Store) load() *snapshot {
	if s == nil {
		return &snapshot{values: map[string]json.RawMessage{}}
	}
	if snap := s.current.Load(); snap != nil {
		return snap
	}
	return &snapshot{values: map[string]json.RawMessage{}}
}
