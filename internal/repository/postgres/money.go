package postgres

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cassiomorais/pixrelay/internal/domain/charge"
)

// numericToCents reads a NUMERIC(14,2) column rendered as text.
func numericToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty numeric string")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}

	return int64(math.Round(f * 100)), nil
}

func centsToNumeric(cents int64) string {
	return charge.FormatCents(cents)
}
