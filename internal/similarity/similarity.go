// Package similarity scores how alike two entity surface strings are.
//
// The resolver treats scores at or above its configured threshold as
// "same real-world entity". The default oracle is a Levenshtein-ratio
// scorer; remote or model-backed oracles can be plugged in behind the
// same interface, which is why Score returns an error even though the
// local implementation never produces one.
package similarity

import (
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// DefaultThreshold is the score at or above which two surfaces are
// considered the same entity.
const DefaultThreshold = 80

// Oracle scores the similarity of two strings on a 0-100 scale.
// Higher means more similar. Callers are expected to lowercase both
// arguments before invocation.
type Oracle interface {
	Score(a, b string) (int, error)
}

// Ratio is the default Oracle: a pure-Go port of the classic
// fuzzywuzzy Levenshtein ratio.
type Ratio struct{}

// Score returns the Levenshtein similarity ratio of a and b in [0, 100].
func (Ratio) Score(a, b string) (int, error) {
	return fuzzy.Ratio(a, b), nil
}
