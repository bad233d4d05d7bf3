package security

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is the work factor for admin passwords.
const bcryptCost = 12

// Admin password bounds. bcrypt ignores input past 72 bytes.
const (
	MinAdminPasswordLength = 8
	maxPasswordBytes       = 72
)

var (
	// ErrPasswordTooShort is returned for admin passwords under the minimum length.
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	// ErrPasswordTooLong is returned for passwords bcrypt would truncate.
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
)

// ValidateAdminPassword checks a new admin password before it is stored.
func ValidateAdminPassword(password string) error {
	if utf8.RuneCountInString(password) < MinAdminPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword returns the bcrypt hash stored on the admin row.
func HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored admin hash.
// An empty hash never matches.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
