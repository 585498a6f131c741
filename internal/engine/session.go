// Package engine implements the pseudonymization core: consolidating raw
// entity mentions into canonical identities, allocating label-scoped
// pseudonyms, substituting surface forms in text, and reversing the
// substitution losslessly.
//
// All state lives in a caller-owned Session scoped to one request. The
// engine itself holds no mutable state and performs no locking; callers
// running concurrent requests use independent sessions.
package engine

import "strings"

// Session holds the bidirectional entity/pseudonym mapping for one
// anonymization request, plus the original query text.
//
// The forward map is keyed by every surface form seen (including case
// variants and fuzzy-merged spellings); the reverse map is keyed by
// pseudonym and holds only the first-seen surface of each identity.
// Both maps preserve insertion order because resolution and reversal
// are order-sensitive.
//
// A Session is not safe for concurrent use. It is created empty at
// request start and discarded at request end; nothing persists across
// requests.
type Session struct {
	query string

	forward  map[string]string // surface -> pseudonym
	fwdOrder []string          // forward insertion order

	reverse  map[string]string // pseudonym -> first-seen surface
	revOrder []string          // reverse insertion order
}

// NewSession creates an empty session for the given query text.
func NewSession(query string) *Session {
	return &Session{
		query:   query,
		forward: make(map[string]string),
		reverse: make(map[string]string),
	}
}

// Query returns the original query text.
func (s *Session) Query() string { return s.query }

// matchFold returns the pseudonym bound to any surface equal to text
// under case-insensitive comparison, scanning in insertion order.
func (s *Session) matchFold(text string) (string, bool) {
	for _, surface := range s.fwdOrder {
		if strings.EqualFold(surface, text) {
			return s.forward[surface], true
		}
	}
	return "", false
}

// bind records surface as an additional alias of an existing identity.
// No reverse entry is created; reversal always restores the first-seen
// surface of the identity.
func (s *Session) bind(surface, pseudonym string) {
	if _, ok := s.forward[surface]; !ok {
		s.fwdOrder = append(s.fwdOrder, surface)
	}
	s.forward[surface] = pseudonym
}

// insert records a brand-new identity in both directions.
func (s *Session) insert(surface, pseudonym string) {
	s.bind(surface, pseudonym)
	if _, ok := s.reverse[pseudonym]; !ok {
		s.revOrder = append(s.revOrder, pseudonym)
	}
	s.reverse[pseudonym] = surface
}

// pseudonyms returns every pseudonym value in forward insertion order.
// Fuzzy-merged aliases repeat their shared pseudonym; the allocator
// only cares about the maximum index per label, so duplicates are fine.
func (s *Session) pseudonyms() []string {
	out := make([]string, 0, len(s.fwdOrder))
	for _, surface := range s.fwdOrder {
		out = append(out, s.forward[surface])
	}
	return out
}

// Mapping returns a copy of the forward map (surface -> pseudonym).
func (s *Session) Mapping() map[string]string {
	out := make(map[string]string, len(s.forward))
	for k, v := range s.forward {
		out[k] = v
	}
	return out
}

// pair is one forward-map entry in insertion order.
type pair struct {
	surface   string
	pseudonym string
}

// forwardPairs returns the forward map as ordered pairs.
func (s *Session) forwardPairs() []pair {
	out := make([]pair, 0, len(s.fwdOrder))
	for _, surface := range s.fwdOrder {
		out = append(out, pair{surface: surface, pseudonym: s.forward[surface]})
	}
	return out
}
