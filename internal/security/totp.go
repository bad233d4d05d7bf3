package security

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

// TOTPIssuer labels enrolled secrets in authenticator apps.
const TOTPIssuer = "Backgammon Cards"

// pendingSecretTTL bounds how long an unconfirmed enrollment stays valid.
const pendingSecretTTL = 10 * time.Minute

// TOTPEnrollment is a freshly generated secret awaiting confirmation.
type TOTPEnrollment struct {
	Secret     string
	OTPAuthURL string
	QRImage    string // PNG data URL, empty when rendering fails.
}

// NewTOTPEnrollment generates a secret for the given account.
func NewTOTPEnrollment(accountName string) (TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      TOTPIssuer,
		AccountName: accountName,
	})
	if err != nil {
		return TOTPEnrollment{}, err
	}
	out := TOTPEnrollment{Secret: key.Secret(), OTPAuthURL: key.URL()}
	if img, errImage := key.Image(220, 220); errImage == nil {
		var buf bytes.Buffer
		if errEncode := png.Encode(&buf, img); errEncode == nil {
			out.QRImage = "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
		}
	}
	return out, nil
}

// ValidateTOTP checks a one-time code against a secret.
func ValidateTOTP(code, secret string) bool {
	code = strings.TrimSpace(code)
	if code == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	return totp.Validate(code, secret)
}

type pendingSecret struct {
	secret  string
	expires time.Time
}

// PendingSecrets keeps unconfirmed TOTP secrets in memory.
type PendingSecrets struct {
	mu    sync.Mutex
	items map[uint64]pendingSecret
	now   func() time.Time
}

// NewPendingSecrets creates an empty store.
func NewPendingSecrets() *PendingSecrets {
	return &PendingSecrets{items: make(map[uint64]pendingSecret), now: time.Now}
}

// Set stores a secret for the admin, replacing any earlier one.
func (s *PendingSecrets) Set(adminID uint64, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[adminID] = pendingSecret{secret: secret, expires: s.now().Add(pendingSecretTTL)}
}

// Get returns the pending secret if present and not expired.
func (s *PendingSecrets) Get(adminID uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[adminID]
	if !ok {
		return "", false
	}
	if s.now().After(entry.expires) {
		delete(s.items, adminID)
		return "", false
	}
	return entry.secret, true
}

// Delete drops the admin's pending secret.
func (s *PendingSecrets) Delete(adminID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, adminID)
}
