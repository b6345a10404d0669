package postgres

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amounts live in NUMERIC(14,2) columns; the domain works in int64
// poisha. These helpers convert at the scan/exec boundary.

func numericStringToPoisha(s string) (int64, error) {
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

func poishaToNumericString(poisha int64) string {
	sign := ""
	if poisha < 0 {
		sign = "-"
		poisha = -poisha
	}

	whole := poisha / 100
	frac := poisha % 100

	return fmt.Sprintf("%s%d.%02d", sign, whole, frac)
}
