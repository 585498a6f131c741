package engine

import (
	"regexp"
	"sort"
	"strings"
)

// apply rewrites text by replacing every known surface form with its
// pseudonym.
//
// Entries are processed longest surface first (stable for ties) so a
// short surface that is a substring of a longer one ("Ann" inside
// "Ann Smith") cannot fragment the longer match. Each replacement is
// case-insensitive and anchored at word boundaries: punctuation-adjacent
// occurrences match, partial-word substrings do not.
//
// Replacements run sequentially over one mutating buffer, so an earlier
// (longer) replacement changes what later patterns see. That ordering
// dependency is part of the contract; reordering produces different
// output.
func apply(text string, s *Session) string {
	entries := s.forwardPairs()
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].surface) > len(entries[j].surface)
	})

	for _, e := range entries {
		// QuoteMeta output always compiles.
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(e.surface) + `\b`)
		text = re.ReplaceAllLiteralString(text, e.pseudonym)
	}
	return text
}

// invert restores originals by replacing every pseudonym with its
// first-seen surface, in reverse-map insertion order. Plain literal
// replacement, no word boundaries: pseudonyms are fixed-format tokens
// the engine itself issued, so regex machinery buys nothing here.
func invert(text string, s *Session) string {
	for _, pseudonym := range s.revOrder {
		text = strings.ReplaceAll(text, pseudonym, s.reverse[pseudonym])
	}
	return text
}

// InvertMapping is the stateless variant of invert for callers that
// hold a previously returned forward mapping (surface -> pseudonym)
// instead of a live session. Replacement order is longest pseudonym
// first, then lexicographic: a JSON map carries no insertion order, and
// longest-first keeps PERSON_12 from being clobbered by PERSON_1.
func InvertMapping(text string, forward map[string]string) string {
	type entry struct{ pseudonym, surface string }
	entries := make([]entry, 0, len(forward))
	for surface, pseudonym := range forward {
		entries = append(entries, entry{pseudonym: pseudonym, surface: surface})
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].pseudonym) != len(entries[j].pseudonym) {
			return len(entries[i].pseudonym) > len(entries[j].pseudonym)
		}
		if entries[i].pseudonym != entries[j].pseudonym {
			return entries[i].pseudonym < entries[j].pseudonym
		}
		// Fuzzy-merged surfaces share a pseudonym; pick a stable winner.
		return entries[i].surface < entries[j].surface
	})
	for _, e := range entries {
		text = strings.ReplaceAll(text, e.pseudonym, e.surface)
	}
	return text
}
