package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWT validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
)

// Token audiences keep user and admin tokens from being swapped.
const (
	audienceUser  = "front"
	audienceAdmin = "admin"
)

// UserClaims defines JWT claims for mini-app users.
type UserClaims struct {
	UserID     uint64 `json:"user_id"`
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// AdminClaims defines JWT claims for administrators.
type AdminClaims struct {
	AdminID  uint64 `json:"admin_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken signs a user JWT with the configured expiry.
func GenerateToken(secret string, userID uint64, telegramID int64, username string, expiry time.Duration) (string, error) {
	claims := UserClaims{
		UserID:           userID,
		TelegramID:       telegramID,
		Username:         username,
		RegisteredClaims: registeredClaims(audienceUser, expiry),
	}
	return sign(secret, claims)
}

// ParseToken validates a user JWT and returns its claims.
func ParseToken(secret string, tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}
	if err := parse(secret, tokenString, audienceUser, claims); err != nil {
		return nil, err
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateAdminToken signs an admin JWT with the configured expiry.
func GenerateAdminToken(secret string, adminID uint64, username string, expiry time.Duration) (string, error) {
	claims := AdminClaims{
		AdminID:          adminID,
		Username:         username,
		RegisteredClaims: registeredClaims(audienceAdmin, expiry),
	}
	return sign(secret, claims)
}

// ParseAdminToken validates an admin JWT and returns its claims.
func ParseAdminToken(secret string, tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if err := parse(secret, tokenString, audienceAdmin, claims); err != nil {
		return nil, err
	}
	if claims.AdminID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func registeredClaims(audience string, expiry time.Duration) jwt.RegisteredClaims {
	now := time.Now().UTC()
	return jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
	}
}

func sign(secret string, claims jwt.Claims) (string, error) {
	if secret == "" {
		return "", errors.New("security: empty jwt secret")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parse(secret, tokenString, audience string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithAudience(audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
