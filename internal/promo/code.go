// Package promo implements the promo code ledger and the redemption workflow.
package promo

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
)

// codePattern is the accepted shape of a normalized code.
var codePattern = regexp.MustCompile(`^[A-Z0-9]{6,20}$`)

// generateAlphabet omits characters that are easy to misread.
const generateAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Generated code length bounds.
const (
	MinCodeLength     = 6
	MaxCodeLength     = 20
	DefaultCodeLength = 8
)

// NormalizeCode trims and uppercases a code and checks its format.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !codePattern.MatchString(code) {
		return "", apperr.Validation(apperr.CodeInvalidFormat, "promo code must be 6-20 letters or digits")
	}
	return code, nil
}

// GenerateCode returns a random code of the given length, prefixed when prefix is set.
func GenerateCode(prefix string, length int) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if length <= 0 {
		length = DefaultCodeLength
	}
	if len(prefix)+length > MaxCodeLength || len(prefix)+length < MinCodeLength {
		return "", apperr.Validation(apperr.CodeInvalidInput, "generated code length out of range")
	}
	var b strings.Builder
	b.Grow(len(prefix) + length)
	b.WriteString(prefix)
	max := big.NewInt(int64(len(generateAlphabet)))
	for i := 0; i < length; i++ {
		n, errRand := rand.Int(rand.Reader, max)
		if errRand != nil {
			return "", errRand
		}
		b.WriteByte(generateAlphabet[n.Int64()])
	}
	return NormalizeCode(b.String())
}
