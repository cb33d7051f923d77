package validator

import (
	"errors"
	"strings"
)

func ValidateLocation(s string) (string, error) {
	loc := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if len(loc) < 2 {
		return "", errors.New("invalid location")
	}
	return loc, nil
}

// ValidateRange enforces non-negative bounds and min <= max when both are
// given. ok=false means the range is absent and always valid.
func ValidateRange(min, max float64, ok bool) error {
	if !ok {
		return nil
	}
	if min < 0 || max < 0 {
		return errors.New("bounds must be non-negative")
	}
	if max > 0 && min > max {
		return errors.New("min exceeds max")
	}
	return nil
}
