package common

import "strconv"

// AtoiDefault converts value to an integer, returning def when it is empty,
// malformed or outside [1, max]. A max of zero disables the upper bound.
func AtoiDefault(value string, def, max int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return def
	}
	if max > 0 && parsed > max {
		return max
	}
	return parsed
}
