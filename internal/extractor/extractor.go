// Package extractor produces raw entity mentions from input text.
//
// Detection runs in fixed stages, and stage order is part of the
// contract: the resolver consumes mentions in extractor order, so a
// stable order is what makes repeated anonymization of the same text
// deterministic.
//
//  1. Rule stage: regex detector rules (credit cards, SSNs, account
//     numbers, emails, ages) from a runtime-mutable registry.
//  2. NER stage: prose named entities (people, places, organizations,
//     money, dates).
//  3. Phone stage: phone-shaped digit runs.
//  4. Password stage: tokens mixing letters, digits and symbols.
//  5. Optional AI stage: Ollama-backed detections, cached by content
//     hash.
//
// The extractor reports spans; it does not deduplicate or resolve
// them. That is the engine's job.
package extractor

import (
	"context"

	"text-pseudonymizer/internal/logger"
)

// Mention is one raw detection: a surface text and its label guess.
// Labels are opaque strings, never validated against a closed set —
// detector stages are pluggable and may introduce new labels.
type Mention struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Entity labels emitted by the built-in stages.
const (
	LabelCreditCard  = "CREDIT_CARD"
	LabelSSN         = "SOCIAL_SECURITY_NUMBER"
	LabelAccount     = "ACCOUNT_NUMBER"
	LabelEmail       = "EMAIL"
	LabelAge         = "AGE"
	LabelPhoneNumber = "PHONE_NUMBER"
	LabelPassword    = "PASSWORD"
)

// Extractor produces an ordered sequence of mentions for a text.
// Implementations must return the same sequence for the same input.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]Mention, error)
}

// Composite is the default extractor: rule registry, prose NER, phone
// and password scans, and an optional AI detector, in that order.
type Composite struct {
	rules *Registry
	ai    *AIDetector // nil = AI stage disabled
	log   *logger.Logger
}

// NewComposite creates the default extractor. ai may be nil.
func NewComposite(rules *Registry, ai *AIDetector, log *logger.Logger) *Composite {
	return &Composite{rules: rules, ai: ai, log: log}
}

// Extract runs all stages and concatenates their output in stage order.
// A failing stage aborts the whole extraction; there is no partial
// result and no retry.
func (c *Composite) Extract(ctx context.Context, text string) ([]Mention, error) {
	var out []Mention

	out = append(out, c.rules.Match(text)...)

	ner, err := nerMentions(text)
	if err != nil {
		return nil, err
	}
	out = append(out, ner...)

	out = append(out, phoneMentions(text)...)
	out = append(out, passwordMentions(text)...)

	if c.ai != nil {
		ai, err := c.ai.Detect(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, ai...)
	}

	c.log.Debugf("extract", "%d mentions from %d bytes", len(out), len(text))
	return out, nil
}
