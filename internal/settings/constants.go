package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DB setting keys and defaults.
const (
	// BotWelcomeTextKey is the greeting sent on /start.
	BotWelcomeTextKey = "BOT_WELCOME_TEXT"
	// DefaultBotWelcomeText is the fallback greeting.
	DefaultBotWelcomeText = "Welcome to Backgammon Cards! Redeem a promo code or buy a package to unlock training cards."
	// PurchasePendingTTLMinutesKey controls when pending purchases expire.
	PurchasePendingTTLMinutesKey = "PURCHASE_PENDING_TTL_MINUTES"
	// DefaultPurchasePendingTTLMinutes is the fallback pending purchase lifetime.
	DefaultPurchasePendingTTLMinutes = 60
	// CardsPageMaxLimitKey caps the page size of card listings.
	CardsPageMaxLimitKey = "CARDS_PAGE_MAX_LIMIT"
	// DefaultCardsPageMaxLimit is the fallback page size cap.
	DefaultCardsPageMaxLimit = 100
)

// KnownKeys lists the keys accepted by the settings API.
var KnownKeys = []string{
	BotWelcomeTextKey,
	PurchasePendingTTLMinutesKey,
	CardsPageMaxLimitKey,
}

// IsKnownKey reports whether key is a supported setting.
func IsKnownKey(key string) bool {
	for _, known := range KnownKeys {
		if known == key {
			return true
		}
	}
	return false
}

// ValidateValue checks that a JSON value fits the type expected for key.
func ValidateValue(key string, value json.RawMessage) error {
	switch key {
	case BotWelcomeTextKey:
		var text string
		if err := json.Unmarshal(value, &text); err != nil || strings.TrimSpace(text) == "" {
			return fmt.Errorf("settings: %s must be a non-empty string", key)
		}
	case PurchasePendingTTLMinutesKey, CardsPageMaxLimitKey:
		if n, ok := parsePositiveInt(value); !ok || n < 1 {
			return fmt.Errorf("settings: %s must be a positive integer", key)
		}
	default:
		return fmt.Errorf("settings: unknown key %q", key)
	}
	return nil
}

// parsePositiveInt accepts a JSON number or a string holding one.
func parsePositiveInt(value json.RawMessage) (int, bool) {
	var n int
	if err := json.Unmarshal(value, &n); err == nil {
		return n, true
	}
	var text string
	if err := json.Unmarshal(value, &text); err != nil {
		return 0, false
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(text))
	return parsed, err == nil
}
