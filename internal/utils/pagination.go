// Package utils provides small helper functions shared across layers:
// query-parameter parsing for the paginated endpoints and referral code
// generation. Nothing here touches the database or domain types.
package utils

import "strconv"

// AtoiDefault converts a string to an int, returning def when the string is
// empty or not an integer. Used for query parameters such as page, page_size,
// max_level, year and month, where a missing or garbled value should fall
// back rather than error.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampRange bounds n into [lo, hi]. lo must not exceed hi.
func ClampRange(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
