package geo

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Zürich" -> "Zurich").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeLocation folds a free-text location into a cache key
// (lowercase, no diacritics, single spaces, no trailing punctuation).
func NormalizeLocation(text string) string {
	text = strings.ToLower(RemoveDiacritics(text))
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimRight(text, " .,;")
}
