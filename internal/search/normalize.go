// Package search provides deterministic normalization and fuzzy matching of
// free-text product descriptors against a user's catalog. It is small and
// engineered with production-grade ergonomics:
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options for thresholds and the scoring function
//   - Stable tie-breaking (first candidate wins on equal scores)
//   - Distinct errors for "nothing matched" and "brand rejected"
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds text into the canonical matching form: diacritics are
// stripped, letters are lower-cased, every character outside [a-z0-9] becomes
// a separator, and runs of separators collapse to a single space.
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// Key builds the matching key for a product: normalized name and unit joined
// by a single space.
func Key(name, unit string) string {
	return strings.TrimSpace(Normalize(name) + " " + Normalize(unit))
}
