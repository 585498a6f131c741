package engine

import (
	"fmt"
	"strings"

	"text-pseudonymizer/internal/extractor"
	"text-pseudonymizer/internal/metrics"
	"text-pseudonymizer/internal/similarity"
)

// Resolver consolidates raw mentions into canonical identities in a
// session. It is stateless; all mutable state lives in the session.
type Resolver struct {
	oracle    similarity.Oracle
	threshold int
	metrics   *metrics.Metrics // nil = no metrics
}

// NewResolver creates a resolver using the given similarity oracle and
// merge threshold (0-100). m may be nil.
func NewResolver(oracle similarity.Oracle, threshold int, m *metrics.Metrics) *Resolver {
	return &Resolver{oracle: oracle, threshold: threshold, metrics: m}
}

// Resolve processes mentions in extractor order. Each mention either
// merges into an existing identity (case-insensitive exact match first,
// then fuzzy match against existing surfaces in insertion order, first
// hit wins) or becomes a new identity with a freshly allocated
// pseudonym.
//
// Fuzzy merging deliberately ignores labels: an ORG and a PERSON with
// similar spelling will merge into one identity. This mirrors how
// humans read near-identical strings as the same thing, and changing it
// would silently change which pseudonyms a given text produces.
//
// Mentions with empty surface text are ignored: the extractor contract
// forbids them, and an empty surface would otherwise allocate a
// pseudonym that the substitution pass can never match.
func (r *Resolver) Resolve(mentions []extractor.Mention, s *Session) error {
	for _, m := range mentions {
		if m.Text == "" {
			continue
		}

		// Case variants of an already-seen surface reuse its pseudonym.
		if pseudonym, ok := s.matchFold(m.Text); ok {
			s.bind(m.Text, pseudonym)
			if r.metrics != nil {
				r.metrics.MergesExact.Add(1)
			}
			continue
		}

		pseudonym, ok, err := r.fuzzyMatch(m.Text, s)
		if err != nil {
			return err
		}
		if ok {
			s.bind(m.Text, pseudonym)
			if r.metrics != nil {
				r.metrics.MergesFuzzy.Add(1)
			}
			continue
		}

		// New identity.
		n := nextIndex(m.Label, s.pseudonyms())
		s.insert(m.Text, fmt.Sprintf("%s_%d", m.Label, n))
		if r.metrics != nil {
			r.metrics.PseudonymsAllocated.Add(1)
		}
	}
	return nil
}

// fuzzyMatch scans existing surfaces in insertion order and returns the
// pseudonym of the first one scoring at or above the threshold. No
// best-of-all-candidates search: first match wins, which keeps
// resolution deterministic for a deterministic extractor.
func (r *Resolver) fuzzyMatch(text string, s *Session) (string, bool, error) {
	lower := strings.ToLower(text)
	for _, surface := range s.fwdOrder {
		score, err := r.oracle.Score(lower, strings.ToLower(surface))
		if err != nil {
			return "", false, fmt.Errorf("similarity oracle: %w", err)
		}
		if score >= r.threshold {
			return s.forward[surface], true, nil
		}
	}
	return "", false, nil
}
