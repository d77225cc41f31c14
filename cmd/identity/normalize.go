package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeName trims surrounding whitespace and collapses inner runs of spaces.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
