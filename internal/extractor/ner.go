package extractor

import (
	"fmt"

	"github.com/jdkato/prose/v2"
)

// nerLabels are the prose entity labels the NER stage passes through.
// Everything else (PERCENT, CARDINAL, ...) is noise for pseudonymization.
var nerLabels = map[string]bool{
	"PERSON": true,
	"GPE":    true,
	"ORG":    true,
	"MONEY":  true,
	"DATE":   true,
}

// nerMentions runs prose NER over the text and keeps name-like entities.
func nerMentions(text string) ([]Mention, error) {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, fmt.Errorf("prose document: %w", err)
	}

	var out []Mention
	for _, ent := range doc.Entities() {
		if nerLabels[ent.Label] {
			out = append(out, Mention{Text: ent.Text, Label: ent.Label})
		}
	}
	return out, nil
}
