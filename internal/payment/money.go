package payment

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatAmount renders minor units as a decimal string with two fraction digits.
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// ParseAmount converts a decimal string such as "500.00" into minor units.
func ParseAmount(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("payment: empty amount")
	}
	negative := strings.HasPrefix(value, "-")
	value = strings.TrimPrefix(value, "-")

	whole, frac, hasFrac := strings.Cut(value, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("payment: invalid amount %q", value)
		}
		if len(frac) == 1 {
			frac += "0"
		}
	} else {
		frac = "00"
	}
	units, errWhole := strconv.ParseInt(whole, 10, 64)
	if errWhole != nil {
		return 0, fmt.Errorf("payment: invalid amount %q: %w", value, errWhole)
	}
	cents, errFrac := strconv.ParseInt(frac, 10, 64)
	if errFrac != nil {
		return 0, fmt.Errorf("payment: invalid amount %q: %w", value, errFrac)
	}
	total := units*100 + cents
	if negative {
		total = -total
	}
	return total, nil
}
