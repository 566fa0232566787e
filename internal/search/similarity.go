package search

import fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

// Scorer returns a similarity score in [0,100] for two normalized strings.
type Scorer func(a, b string) int

// TokenSortRatio is the default Scorer. Tokens are sorted before comparison,
// so "1l leche" and "leche 1l" score 100. Inputs are expected to be already
// normalized; no further cleansing is applied.
func TokenSortRatio(a, b string) int {
	return fuzzy.TokenSortRatio(a, b)
}
