package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Telegram mini-app init data errors.
var (
	// ErrInitDataInvalid indicates malformed or unsigned init data.
	ErrInitDataInvalid = errors.New("invalid init data")
	// ErrInitDataExpired indicates init data older than the allowed age.
	ErrInitDataExpired = errors.New("init data expired")
)

// webAppKey is the HMAC key Telegram uses to derive the init data secret.
const webAppKey = "WebAppData"

// WebAppUser is the user object embedded in mini-app init data.
type WebAppUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
}

// WebAppInitData is the verified content of a mini-app launch.
type WebAppInitData struct {
	User     WebAppUser
	AuthDate time.Time
	QueryID  string
}

// ValidateWebAppInitData verifies the hash of raw init data signed for botToken
// and rejects data older than maxAge. A zero maxAge disables the age check.
func ValidateWebAppInitData(raw, botToken string, maxAge time.Duration, now time.Time) (WebAppInitData, error) {
	if strings.TrimSpace(raw) == "" || botToken == "" {
		return WebAppInitData{}, ErrInitDataInvalid
	}
	values, errParse := url.ParseQuery(raw)
	if errParse != nil {
		return WebAppInitData{}, ErrInitDataInvalid
	}
	hash := values.Get("hash")
	if hash == "" {
		return WebAppInitData{}, ErrInitDataInvalid
	}
	expected, errHex := hex.DecodeString(hash)
	if errHex != nil {
		return WebAppInitData{}, ErrInitDataInvalid
	}
	if !hmac.Equal(signWebAppData(values, botToken), expected) {
		return WebAppInitData{}, ErrInitDataInvalid
	}

	authUnix, errAuth := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if errAuth != nil || authUnix <= 0 {
		return WebAppInitData{}, ErrInitDataInvalid
	}
	authDate := time.Unix(authUnix, 0).UTC()
	if maxAge > 0 && now.Sub(authDate) > maxAge {
		return WebAppInitData{}, ErrInitDataExpired
	}

	var user WebAppUser
	if errUser := json.Unmarshal([]byte(values.Get("user")), &user); errUser != nil || user.ID == 0 {
		return WebAppInitData{}, ErrInitDataInvalid
	}
	return WebAppInitData{User: user, AuthDate: authDate, QueryID: values.Get("query_id")}, nil
}

// SignWebAppInitData encodes values as init data signed for botToken.
func SignWebAppInitData(values url.Values, botToken string) string {
	signed := url.Values{}
	for key, vals := range values {
		if key == "hash" {
			continue
		}
		signed[key] = vals
	}
	signed.Set("hash", hex.EncodeToString(signWebAppData(signed, botToken)))
	return signed.Encode()
}

// signWebAppData computes HMAC_SHA256(data_check_string, HMAC_SHA256(bot_token, "WebAppData")).
func signWebAppData(values url.Values, botToken string) []byte {
	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+values.Get(key))
	}

	secretMAC := hmac.New(sha256.New, []byte(webAppKey))
	secretMAC.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secretMAC.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return mac.Sum(nil)
}
