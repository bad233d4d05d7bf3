package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openSettingsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:settings_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return db
}

func TestStoreDefaultsWhenEmpty(t *testing.T) {
	store := NewStore(openSettingsTestDB(t))
	if errRefresh := store.Refresh(context.Background()); errRefresh != nil {
		t.Fatalf("refresh: %v", errRefresh)
	}

	if got := store.Int(CardsPageMaxLimitKey, DefaultCardsPageMaxLimit); got != DefaultCardsPageMaxLimit {
		t.Fatalf("expected default limit, got %d", got)
	}
	if got := store.String(BotWelcomeTextKey, DefaultBotWelcomeText); got != DefaultBotWelcomeText {
		t.Fatalf("expected default welcome text, got %q", got)
	}
}

func TestStoreSetRefreshesSnapshot(t *testing.T) {
	store := NewStore(openSettingsTestDB(t))
	ctx := context.Background()

	if errSet := store.Set(ctx, PurchasePendingTTLMinutesKey, json.RawMessage(`15`)); errSet != nil {
		t.Fatalf("set ttl: %v", errSet)
	}
	if errSet := store.Set(ctx, CardsPageMaxLimitKey, json.RawMessage(`"25"`)); errSet != nil {
		t.Fatalf("set limit: %v", errSet)
	}
	if errSet := store.Set(ctx, PurchasePendingTTLMinutesKey, json.RawMessage(`30`)); errSet != nil {
		t.Fatalf("overwrite ttl: %v", errSet)
	}

	if got := store.Int(PurchasePendingTTLMinutesKey, 0); got != 30 {
		t.Fatalf("expected ttl 30, got %d", got)
	}
	if got := store.Int(CardsPageMaxLimitKey, 0); got != 25 {
		t.Fatalf("expected string-encoded limit 25, got %d", got)
	}
	if store.UpdatedAt().IsZero() {
		t.Fatalf("expected updated at to be set")
	}
	if len(store.Values()) != 2 {
		t.Fatalf("expected 2 values, got %d", len(store.Values()))
	}
}

func TestStoreSetRejectsInvalidJSON(t *testing.T) {
	store := NewStore(openSettingsTestDB(t))
	if errSet := store.Set(context.Background(), BotWelcomeTextKey, json.RawMessage(`hello`)); errSet == nil {
		t.Fatalf("expected invalid json error")
	}
}

func TestValidateValue(t *testing.T) {
	cases := []struct {
		key   string
		value string
		ok    bool
	}{
		{BotWelcomeTextKey, `"Hi"`, true},
		{BotWelcomeTextKey, `""`, false},
		{PurchasePendingTTLMinutesKey, `30`, true},
		{PurchasePendingTTLMinutesKey, `"45"`, true},
		{PurchasePendingTTLMinutesKey, `0`, false},
		{CardsPageMaxLimitKey, `"many"`, false},
		{"UNKNOWN", `1`, false},
	}
	for _, tc := range cases {
		err := ValidateValue(tc.key, json.RawMessage(tc.value))
		if tc.ok && err != nil {
			t.Fatalf("expected %s=%s to be valid, got %v", tc.key, tc.value, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("expected %s=%s to be rejected", tc.key, tc.value)
		}
	}
}
