package engine

import (
	"context"
	"time"

	"text-pseudonymizer/internal/extractor"
	"text-pseudonymizer/internal/logger"
	"text-pseudonymizer/internal/metrics"
	"text-pseudonymizer/internal/similarity"
)

// Engine wires the extractor, resolver and substitution passes into the
// public pseudonymization operations. One Engine serves all requests;
// per-request state lives in the Session each call receives.
//
// Operations that need the anonymized text re-run extraction and
// resolution from scratch — there is no cached result. Re-running is
// idempotent within a session because resolution reuses existing map
// entries, which is exactly why the resolver must be deterministic.
//
// Every operation returns ok=false when the session has no query text;
// that is the contractual "no result" signal, not an error.
type Engine struct {
	extractor extractor.Extractor
	resolver  *Resolver
	metrics   *metrics.Metrics // nil = no metrics
	log       *logger.Logger
}

// New creates an engine. m may be nil.
func New(ext extractor.Extractor, oracle similarity.Oracle, threshold int, m *metrics.Metrics, log *logger.Logger) *Engine {
	return &Engine{
		extractor: ext,
		resolver:  NewResolver(oracle, threshold, m),
		metrics:   m,
		log:       log,
	}
}

// Analyze returns the raw extractor output for the session's query,
// echoed without resolution.
func (e *Engine) Analyze(ctx context.Context, s *Session) ([]extractor.Mention, bool, error) {
	if s.Query() == "" {
		return nil, false, nil
	}
	mentions, err := e.extract(ctx, s.Query())
	if err != nil {
		return nil, false, err
	}
	return mentions, true, nil
}

// Anonymize extracts, resolves and substitutes, returning the
// anonymized text.
func (e *Engine) Anonymize(ctx context.Context, s *Session) (string, bool, error) {
	if s.Query() == "" {
		return "", false, nil
	}
	start := time.Now()

	mentions, err := e.extract(ctx, s.Query())
	if err != nil {
		return "", false, err
	}
	if err := e.resolver.Resolve(mentions, s); err != nil {
		if e.metrics != nil {
			e.metrics.ErrorsOracle.Add(1)
		}
		return "", false, err
	}
	out := apply(s.Query(), s)

	if e.metrics != nil {
		e.metrics.RecordAnonLatency(time.Since(start))
	}
	e.log.Debugf("anonymize", "%d mentions, %d identities", len(mentions), len(s.revOrder))
	return out, true, nil
}

// OriginalText re-derives the anonymized text and inverts it back to
// the original.
func (e *Engine) OriginalText(ctx context.Context, s *Session) (string, bool, error) {
	anonymized, ok, err := e.Anonymize(ctx, s)
	if err != nil || !ok {
		return "", ok, err
	}
	return invert(anonymized, s), true, nil
}

// ConfirmMatch reports whether full reversal reproduces the original
// query exactly. A false result is a first-class outcome the caller
// must surface — the engine never repairs a failed round trip.
func (e *Engine) ConfirmMatch(ctx context.Context, s *Session) (matched, ok bool, err error) {
	original, ok, err := e.OriginalText(ctx, s)
	if err != nil || !ok {
		return false, ok, err
	}
	matched = original == s.Query()
	if !matched && e.metrics != nil {
		e.metrics.RoundTripMismatches.Add(1)
	}
	return matched, true, nil
}

// extract calls the extractor and records metrics around it.
func (e *Engine) extract(ctx context.Context, text string) ([]extractor.Mention, error) {
	start := time.Now()
	mentions, err := e.extractor.Extract(ctx, text)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ErrorsExtract.Add(1)
		}
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RecordExtractLatency(time.Since(start))
		for _, m := range mentions {
			e.metrics.RecordMention(m.Label)
		}
	}
	return mentions, nil
}
