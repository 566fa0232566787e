package search

import "errors"

var (
	// ErrNoMatch is returned when no candidate reaches the name threshold.
	ErrNoMatch = errors.New("no matching product")
	// ErrBrandRejected is returned when the best name match fails the brand
	// check. The whole match is rejected, not only the brand.
	ErrBrandRejected = errors.New("brand does not match")
)

// Defaults for Matcher thresholds (inclusive).
const (
	DefaultThreshold      = 80
	DefaultBrandThreshold = 80
)

// Candidate is one catalog row offered to the matcher. Callers must supply
// candidates in a stable order; ties go to the first one.
type Candidate struct {
	Name  string
	Brand string
	Unit  string
}

// Query is the free-text product descriptor to resolve. Brand is optional.
type Query struct {
	Name  string
	Brand string
	Unit  string
}

// Result identifies the accepted candidate.
type Result struct {
	Index      int // position in the candidate slice
	Score      int // name+unit score
	BrandScore int // brand score; 0 when no brand was supplied
}

// ----------------------------------------------------------------------------
// Options

type Option func(*Matcher)

// WithThreshold sets the minimum accepted name score (0..100).
func WithThreshold(n int) Option {
	return func(m *Matcher) {
		if n >= 0 && n <= 100 {
			m.threshold = n
		}
	}
}

// WithBrandThreshold sets the minimum accepted brand score (0..100).
func WithBrandThreshold(n int) Option {
	return func(m *Matcher) {
		if n >= 0 && n <= 100 {
			m.brandThreshold = n
		}
	}
}

// WithScorer replaces the similarity metric.
func WithScorer(s Scorer) Option {
	return func(m *Matcher) {
		if s != nil {
			m.score = s
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

// Matcher resolves a Query against candidates. It is immutable after
// construction and safe for concurrent use.
type Matcher struct {
	threshold      int
	brandThreshold int
	score          Scorer
}

// NewMatcher returns a Matcher using TokenSortRatio and the default thresholds
// unless overridden.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		threshold:      DefaultThreshold,
		brandThreshold: DefaultBrandThreshold,
		score:          TokenSortRatio,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match picks the highest-scoring candidate for q. The best score must be at
// least the name threshold, otherwise ErrNoMatch. When q carries a brand, the
// chosen candidate's brand must also reach the brand threshold, otherwise
// ErrBrandRejected.
func (m *Matcher) Match(q Query, cands []Candidate) (Result, error) {
	qk := Key(q.Name, q.Unit)
	if qk == "" || len(cands) == 0 {
		return Result{}, ErrNoMatch
	}

	best := Result{Index: -1, Score: -1}
	for i, c := range cands {
		s := m.score(qk, Key(c.Name, c.Unit))
		if s > best.Score {
			best = Result{Index: i, Score: s}
		}
	}
	if best.Index < 0 || best.Score < m.threshold {
		return Result{}, ErrNoMatch
	}

	if qb := Normalize(q.Brand); qb != "" {
		best.BrandScore = m.score(qb, Normalize(cands[best.Index].Brand))
		if best.BrandScore < m.brandThreshold {
			return best, ErrBrandRejected
		}
	}
	return best, nil
}
