package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text-pseudonymizer/internal/extractor"
	"text-pseudonymizer/internal/logger"
	"text-pseudonymizer/internal/metrics"
	"text-pseudonymizer/internal/similarity"
)

// stubExtractor returns a fixed mention list, like a deterministic NLP
// collaborator would.
type stubExtractor struct {
	mentions []extractor.Mention
	err      error
}

func (s *stubExtractor) Extract(_ context.Context, _ string) ([]extractor.Mention, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.mentions, nil
}

// failingOracle simulates a broken similarity collaborator.
type failingOracle struct{}

func (failingOracle) Score(_, _ string) (int, error) {
	return 0, errors.New("oracle unavailable")
}

func newTestEngine(mentions []extractor.Mention) *Engine {
	return New(
		&stubExtractor{mentions: mentions},
		similarity.Ratio{},
		similarity.DefaultThreshold,
		nil,
		logger.New("ENGINE", "error"),
	)
}

func mention(text, label string) extractor.Mention {
	return extractor.Mention{Text: text, Label: label}
}

func TestAnonymize_EndToEnd(t *testing.T) {
	text := "Contact John Doe at john@example.com, SSN 123-45-6789"
	eng := newTestEngine([]extractor.Mention{
		mention("John Doe", "PERSON"),
		mention("john@example.com", "EMAIL"),
		mention("123-45-6789", "SOCIAL_SECURITY_NUMBER"),
	})

	s := NewSession(text)
	anonymized, ok, err := eng.Anonymize(context.Background(), s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Contact PERSON_1 at EMAIL_1, SSN SOCIAL_SECURITY_NUMBER_1", anonymized)

	original, ok, err := eng.OriginalText(context.Background(), s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, text, original)

	matched, ok, err := eng.ConfirmMatch(context.Background(), s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, matched)
}

func TestAnonymize_EmptyQueryIsNoResult(t *testing.T) {
	eng := newTestEngine(nil)
	s := NewSession("")

	_, ok, err := eng.Anonymize(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = eng.OriginalText(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = eng.ConfirmMatch(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnonymize_Deterministic(t *testing.T) {
	mentions := []extractor.Mention{
		mention("Acme Corp", "ORG"),
		mention("Paris", "GPE"),
		mention("Jane Roe", "PERSON"),
	}
	text := "Jane Roe of Acme Corp flew to Paris"

	run := func() string {
		eng := newTestEngine(mentions)
		s := NewSession(text)
		out, ok, err := eng.Anonymize(context.Background(), s)
		require.NoError(t, err)
		require.True(t, ok)
		return out
	}

	first := run()
	assert.Equal(t, first, run(), "fresh sessions over identical input must agree")
}

func TestAnonymize_RepeatWithinSessionIsIdempotent(t *testing.T) {
	eng := newTestEngine([]extractor.Mention{mention("Paris", "GPE")})
	s := NewSession("I saw Paris")

	first, _, err := eng.Anonymize(context.Background(), s)
	require.NoError(t, err)
	second, _, err := eng.Anonymize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolve_CaseVariantsMerge(t *testing.T) {
	eng := newTestEngine([]extractor.Mention{
		mention("Paris", "GPE"),
		mention("paris", "GPE"),
	})
	s := NewSession("Paris is lovely; paris indeed")

	anonymized, _, err := eng.Anonymize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "GPE_1 is lovely; GPE_1 indeed", anonymized)

	// Both surfaces alias one identity; only the first-seen surface is
	// restorable.
	assert.Len(t, s.reverse, 1)
	assert.Equal(t, "Paris", s.reverse["GPE_1"])
}

func TestResolve_FuzzyVariantsMergeAcrossLabels(t *testing.T) {
	// Different label guesses must not block the merge.
	eng := newTestEngine([]extractor.Mention{
		mention("Jon Smith", "PERSON"),
		mention("John Smith", "ORG"),
	})
	s := NewSession("Jon Smith, also spelled John Smith")

	anonymized, _, err := eng.Anonymize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "PERSON_1, also spelled PERSON_1", anonymized)
	assert.Len(t, s.reverse, 1)
}

func TestApply_LongestSurfaceFirst(t *testing.T) {
	eng := newTestEngine([]extractor.Mention{
		mention("Ann", "PERSON"),
		mention("Ann Smith", "PERSON"),
	})
	s := NewSession("Ann Smith called Ann")

	anonymized, _, err := eng.Anonymize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "PERSON_2 called PERSON_1", anonymized)
}

func TestApply_WordBoundary(t *testing.T) {
	eng := newTestEngine([]extractor.Mention{mention("Ann", "PERSON")})
	s := NewSession("Anna met Ann")

	anonymized, _, err := eng.Anonymize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "Anna met PERSON_1", anonymized)
}

func TestResolve_MonotonicAllocation(t *testing.T) {
	eng := newTestEngine([]extractor.Mention{
		mention("Alice West", "PERSON"),
		mention("Bob North", "PERSON"),
		mention("Carol South", "PERSON"),
	})
	s := NewSession("Alice West, Bob North, Carol South")

	anonymized, _, err := eng.Anonymize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "PERSON_1, PERSON_2, PERSON_3", anonymized)
}

func TestResolve_PseudonymsUniquePerIdentity(t *testing.T) {
	eng := newTestEngine([]extractor.Mention{
		mention("Alice West", "PERSON"),
		mention("Acme Corp", "ORG"),
		mention("Bob North", "PERSON"),
	})
	s := NewSession("Alice West, Acme Corp, Bob North")

	_, _, err := eng.Anonymize(context.Background(), s)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for pseudonym := range s.reverse {
		assert.False(t, seen[pseudonym], "pseudonym %s issued twice", pseudonym)
		seen[pseudonym] = true
	}
	assert.Len(t, seen, 3)
}

func TestResolve_EmptyMentionIgnored(t *testing.T) {
	eng := newTestEngine([]extractor.Mention{
		mention("", "PERSON"),
		mention("Alice West", "PERSON"),
	})
	s := NewSession("Alice West called")

	anonymized, _, err := eng.Anonymize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "PERSON_1 called", anonymized)
	assert.Len(t, s.reverse, 1)
}

// A mention whose surface equals an already-issued pseudonym literal is
// not guarded against: substitution rewrites the just-inserted
// pseudonym and the round trip fails. ConfirmMatch must report that
// honestly rather than repair it.
func TestConfirmMatch_PseudonymLiteralCollision(t *testing.T) {
	eng := newTestEngine([]extractor.Mention{
		mention("Jon Smith", "PERSON"),
		mention("PERSON_1", "ORG"),
	})
	s := NewSession("Jon Smith mentioned PERSON_1")

	anonymized, _, err := eng.Anonymize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "ORG_1 mentioned ORG_1", anonymized)

	matched, ok, err := eng.ConfirmMatch(context.Background(), s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, matched)
}

func TestAnonymize_ExtractorErrorPropagates(t *testing.T) {
	eng := New(
		&stubExtractor{err: errors.New("model load failed")},
		similarity.Ratio{},
		similarity.DefaultThreshold,
		nil,
		logger.New("ENGINE", "error"),
	)
	s := NewSession("some text")

	_, _, err := eng.Anonymize(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model load failed")
}

func TestAnonymize_OracleErrorPropagates(t *testing.T) {
	eng := New(
		&stubExtractor{mentions: []extractor.Mention{
			mention("Alice West", "PERSON"),
			mention("Alicia West", "PERSON"), // forces a fuzzy scan
		}},
		failingOracle{},
		similarity.DefaultThreshold,
		nil,
		logger.New("ENGINE", "error"),
	)
	s := NewSession("Alice West and Alicia West")

	_, _, err := eng.Anonymize(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle unavailable")
}

func TestMetrics_MergeCountersRecorded(t *testing.T) {
	m := metrics.New()
	eng := New(
		&stubExtractor{mentions: []extractor.Mention{
			mention("Paris", "GPE"),
			mention("paris", "GPE"),      // exact (case) merge
			mention("Jon Smith", "PERSON"),
			mention("John Smith", "ORG"), // fuzzy merge
		}},
		similarity.Ratio{},
		similarity.DefaultThreshold,
		m,
		logger.New("ENGINE", "error"),
	)
	s := NewSession("Paris paris Jon Smith John Smith")

	_, _, err := eng.Anonymize(context.Background(), s)
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Engine.MergesExact)
	assert.Equal(t, int64(1), snap.Engine.MergesFuzzy)
	assert.Equal(t, int64(2), snap.Engine.PseudonymsAllocated)
	assert.Equal(t, int64(4), snap.Engine.MentionsDetected)
}
