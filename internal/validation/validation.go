package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Region length bounds in runes, matching the forecasting service.
const (
	RegionMinLen = 2
	RegionMaxLen = 100
)

// Forecast horizon bounds in months.
const (
	MinMonthsAhead = 1
	MaxMonthsAhead = 24
)

// ErrRegionEmpty is returned when region is empty or whitespace-only after trim.
var ErrRegionEmpty = errors.New("region is required")

// ErrRegionTooShort is returned when region length is below the minimum.
var ErrRegionTooShort = errors.New("region too short")

// ErrRegionTooLong is returned when region length exceeds the maximum.
var ErrRegionTooLong = errors.New("region too long")

// ErrRegionInvalidChars is returned when region contains disallowed characters.
var ErrRegionInvalidChars = errors.New("region contains invalid characters")

// ErrMonthsOutOfRange is returned for a horizon outside MinMonthsAhead..MaxMonthsAhead.
var ErrMonthsOutOfRange = errors.New("months out of range")

// ValidateRegion trims the input, enforces RegionMinLen..RegionMaxLen runes and
// restricts to letters and marks (Unicode), digits, space, comma, hyphen, period and apostrophe.
// Returns the trimmed string. Case is preserved; the client lowercases cache keys itself.
func ValidateRegion(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrRegionEmpty
	}
	if n < RegionMinLen {
		return "", ErrRegionTooShort
	}
	if n > RegionMaxLen {
		return "", ErrRegionTooLong
	}
	for _, c := range r {
		if !isAllowedRegionRune(c) {
			return "", ErrRegionInvalidChars
		}
	}
	return s, nil
}

// isAllowedRegionRune returns true for letters and combining marks (Unicode), digits,
// space, comma, hyphen, period, apostrophe. Indic scripts spell vowels as marks.
func isAllowedRegionRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ValidateMonths checks a forecast horizon.
func ValidateMonths(months int) error {
	if months < MinMonthsAhead || months > MaxMonthsAhead {
		return fmt.Errorf("%w: %d not in %d..%d", ErrMonthsOutOfRange, months, MinMonthsAhead, MaxMonthsAhead)
	}
	return nil
}

// ParseMonths parses the months query parameter. Empty means "use the default" and returns 0.
func ParseMonths(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrMonthsOutOfRange, raw)
	}
	if err := ValidateMonths(n); err != nil {
		return 0, err
	}
	return n, nil
}

// ParseBool parses an optional boolean query parameter. Empty returns nil.
func ParseBool(raw string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid boolean %q", raw)
	}
	return &b, nil
}
