package charge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxAmountCents is the largest amount a NUMERIC(14,2) column holds,
// 999,999,999,999.99.
const MaxAmountCents int64 = 99_999_999_999_999

var amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// ParseAmount converts a plain decimal amount ("10", "10.5", "10.00") into
// cents. Signs, exponents, hex and more than two decimal places are rejected,
// as are zero and anything above MaxAmountCents.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if !amountPattern.MatchString(s) {
		return 0, fmt.Errorf("amount %q is not a plain decimal with at most two places", s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > MaxAmountCents/100 {
		return 0, fmt.Errorf("amount %q out of range", s)
	}

	var fracCents int64
	if frac != "" {
		if len(frac) == 1 {
			frac += "0"
		}
		fracCents, _ = strconv.ParseInt(frac, 10, 64)
	}

	cents := units*100 + fracCents
	if cents <= 0 {
		return 0, fmt.Errorf("amount %q must be positive", s)
	}
	return cents, nil
}

// FormatCents renders cents with exactly two decimals, as the Pix API expects.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// CentsToFloat converts cents to a float for JSON responses.
func CentsToFloat(cents int64) float64 {
	return float64(cents) / 100.0
}
