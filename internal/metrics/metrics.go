// Package metrics provides lightweight, lock-minimal runtime counters
// for the pseudonymization service.
//
// Counters use sync/atomic so hot paths (resolution, substitution)
// incur no mutex contention. The per-label mention map takes a mutex
// because the label set is open — detector rules can introduce labels
// at runtime. Latency statistics use a single mutex per dimension and
// are updated at most once per request.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all runtime counters for a running service instance.
type Metrics struct {
	// Request counters, one per exposed operation.
	RequestsAnonymize   atomic.Int64
	RequestsAnalyze     atomic.Int64
	RequestsDeanonymize atomic.Int64

	// Collaborator error counters.
	ErrorsExtract atomic.Int64
	ErrorsOracle  atomic.Int64

	// Engine counters.
	MentionsDetected    atomic.Int64
	MergesExact         atomic.Int64 // case-insensitive duplicate merges
	MergesFuzzy         atomic.Int64 // similarity-threshold merges
	PseudonymsAllocated atomic.Int64
	RoundTripMismatches atomic.Int64

	// Per-label mention counts; open label set, so mutex-guarded.
	labelMu         sync.Mutex
	mentionsByLabel map[string]int64

	// Latency statistics.
	extractMu   sync.Mutex
	extractStat latencyStats

	anonMu   sync.Mutex
	anonStat latencyStats

	startTime time.Time
}

// New returns a new Metrics with the start time recorded.
func New() *Metrics {
	return &Metrics{
		startTime:       time.Now(),
		mentionsByLabel: make(map[string]int64),
	}
}

// RecordMention counts one detected mention under its label.
func (m *Metrics) RecordMention(label string) {
	m.MentionsDetected.Add(1)
	m.labelMu.Lock()
	m.mentionsByLabel[label]++
	m.labelMu.Unlock()
}

// RecordExtractLatency records the duration of one extraction pass.
func (m *Metrics) RecordExtractLatency(d time.Duration) {
	m.extractMu.Lock()
	m.extractStat.record(float64(d.Microseconds()) / 1000.0)
	m.extractMu.Unlock()
}

// RecordAnonLatency records the duration of one full anonymization.
func (m *Metrics) RecordAnonLatency(d time.Duration) {
	m.anonMu.Lock()
	m.anonStat.record(float64(d.Microseconds()) / 1000.0)
	m.anonMu.Unlock()
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON
// encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.extractMu.Lock()
	extract := m.extractStat.snapshot()
	m.extractMu.Unlock()

	m.anonMu.Lock()
	anon := m.anonStat.snapshot()
	m.anonMu.Unlock()

	m.labelMu.Lock()
	byLabel := make(map[string]int64, len(m.mentionsByLabel))
	for label, n := range m.mentionsByLabel {
		byLabel[label] = n
	}
	m.labelMu.Unlock()

	return Snapshot{
		Requests: RequestSnapshot{
			Anonymize:   m.RequestsAnonymize.Load(),
			Analyze:     m.RequestsAnalyze.Load(),
			Deanonymize: m.RequestsDeanonymize.Load(),
		},
		Errors: ErrorSnapshot{
			Extract: m.ErrorsExtract.Load(),
			Oracle:  m.ErrorsOracle.Load(),
		},
		Engine: EngineSnapshot{
			MentionsDetected:    m.MentionsDetected.Load(),
			MentionsByLabel:     byLabel,
			MergesExact:         m.MergesExact.Load(),
			MergesFuzzy:         m.MergesFuzzy.Load(),
			PseudonymsAllocated: m.PseudonymsAllocated.Load(),
			RoundTripMismatches: m.RoundTripMismatches.Load(),
		},
		Latency: LatencyGroup{
			ExtractionMs:    extract,
			AnonymizationMs: anon,
		},
		UptimeSecs: time.Since(m.startTime).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Requests   RequestSnapshot `json:"requests"`
	Errors     ErrorSnapshot   `json:"errors"`
	Engine     EngineSnapshot  `json:"engine"`
	Latency    LatencyGroup    `json:"latency"`
	UptimeSecs float64         `json:"uptimeSecs"`
}

// RequestSnapshot holds per-operation request counters.
type RequestSnapshot struct {
	Anonymize   int64 `json:"anonymize"`
	Analyze     int64 `json:"analyze"`
	Deanonymize int64 `json:"deanonymize"`
}

// ErrorSnapshot holds collaborator error counters.
type ErrorSnapshot struct {
	Extract int64 `json:"extract"`
	Oracle  int64 `json:"oracle"`
}

// EngineSnapshot holds resolution and allocation counters.
type EngineSnapshot struct {
	MentionsDetected    int64            `json:"mentionsDetected"`
	MentionsByLabel     map[string]int64 `json:"mentionsByLabel,omitempty"`
	MergesExact         int64            `json:"mergesExact"`
	MergesFuzzy         int64            `json:"mergesFuzzy"`
	PseudonymsAllocated int64            `json:"pseudonymsAllocated"`
	RoundTripMismatches int64            `json:"roundTripMismatches"`
}

// LatencyGroup groups the two latency dimensions.
type LatencyGroup struct {
	ExtractionMs    LatencySnapshot `json:"extractionMs"`
	AnonymizationMs LatencySnapshot `json:"anonymizationMs"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
