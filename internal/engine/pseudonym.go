package engine

import (
	"strconv"
	"strings"
)

// nextIndex returns the next free pseudonym index for a label: the
// maximum index among existing pseudonyms of the form label_<digits>,
// plus one. Recomputed from current session state on every allocation,
// so interleaving allocations with merges cannot reuse an index, and a
// pseudonym once issued never changes within a session.
//
// O(session size) per call; fine at tens-to-hundreds of identities.
func nextIndex(label string, existing []string) int {
	prefix := label + "_"
	maxN := 0
	for _, pseudonym := range existing {
		rest, ok := strings.CutPrefix(pseudonym, prefix)
		if !ok || !allDigits(rest) {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n > maxN {
			maxN = n
		}
	}
	return maxN + 1
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
