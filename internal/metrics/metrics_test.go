package metrics

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestCountersAndSnapshot(t *testing.T) {
	t.Parallel()
	m := New()

	m.RequestsAnonymize.Add(3)
	m.RequestsAnalyze.Add(2)
	m.RequestsDeanonymize.Add(1)
	m.ErrorsExtract.Add(1)
	m.MergesExact.Add(4)
	m.MergesFuzzy.Add(2)
	m.PseudonymsAllocated.Add(7)
	m.RoundTripMismatches.Add(1)

	snap := m.Snapshot()
	if snap.Requests.Anonymize != 3 || snap.Requests.Analyze != 2 || snap.Requests.Deanonymize != 1 {
		t.Errorf("request counters: %+v", snap.Requests)
	}
	if snap.Errors.Extract != 1 || snap.Errors.Oracle != 0 {
		t.Errorf("error counters: %+v", snap.Errors)
	}
	if snap.Engine.MergesExact != 4 || snap.Engine.MergesFuzzy != 2 {
		t.Errorf("merge counters: %+v", snap.Engine)
	}
	if snap.Engine.PseudonymsAllocated != 7 || snap.Engine.RoundTripMismatches != 1 {
		t.Errorf("engine counters: %+v", snap.Engine)
	}
	if snap.UptimeSecs < 0 {
		t.Errorf("uptime negative: %f", snap.UptimeSecs)
	}
}

func TestRecordMentionByLabel(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordMention("PERSON")
	m.RecordMention("PERSON")
	m.RecordMention("EMAIL")

	snap := m.Snapshot()
	if snap.Engine.MentionsDetected != 3 {
		t.Errorf("MentionsDetected: got %d, want 3", snap.Engine.MentionsDetected)
	}
	if snap.Engine.MentionsByLabel["PERSON"] != 2 || snap.Engine.MentionsByLabel["EMAIL"] != 1 {
		t.Errorf("MentionsByLabel: %v", snap.Engine.MentionsByLabel)
	}
}

func TestLatencyStats(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordExtractLatency(2 * time.Millisecond)
	m.RecordExtractLatency(4 * time.Millisecond)
	m.RecordExtractLatency(6 * time.Millisecond)

	snap := m.Snapshot()
	lat := snap.Latency.ExtractionMs
	if lat.Count != 3 {
		t.Fatalf("count: got %d, want 3", lat.Count)
	}
	if lat.MinMs != 2 || lat.MaxMs != 6 {
		t.Errorf("min/max: got %f/%f, want 2/6", lat.MinMs, lat.MaxMs)
	}
	if lat.MeanMs != 4 {
		t.Errorf("mean: got %f, want 4", lat.MeanMs)
	}

	// Untouched dimension stays zeroed.
	if snap.Latency.AnonymizationMs.Count != 0 {
		t.Errorf("anonymization latency unexpectedly recorded: %+v", snap.Latency.AnonymizationMs)
	}
}

func TestSnapshotIsJSONSerializable(t *testing.T) {
	t.Parallel()
	m := New()
	m.RecordMention("PERSON")
	m.RecordAnonLatency(3 * time.Millisecond)

	data, err := json.Marshal(m.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round Snapshot
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if round.Engine.MentionsDetected != 1 {
		t.Errorf("round-tripped MentionsDetected: %d", round.Engine.MentionsDetected)
	}
}

func TestConcurrentRecording(t *testing.T) {
	t.Parallel()
	m := New()

	const goroutines = 10
	const perG = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				m.RequestsAnonymize.Add(1)
				m.RecordMention("PERSON")
				m.RecordExtractLatency(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	want := int64(goroutines * perG)
	if snap.Requests.Anonymize != want {
		t.Errorf("RequestsAnonymize: got %d, want %d", snap.Requests.Anonymize, want)
	}
	if snap.Engine.MentionsDetected != want {
		t.Errorf("MentionsDetected: got %d, want %d", snap.Engine.MentionsDetected, want)
	}
	if snap.Latency.ExtractionMs.Count != want {
		t.Errorf("latency count: got %d, want %d", snap.Latency.ExtractionMs.Count, want)
	}
}
