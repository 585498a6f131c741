package extractor

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// ollamaStub serves a canned /api/generate response and counts calls.
func ollamaStub(t *testing.T, response string) (*httptest.Server, *int64) {
	t.Helper()
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(ollamaResponse{Response: response}) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestAIDetectorParsesDetections(t *testing.T) {
	t.Parallel()
	srv, _ := ollamaStub(t, `[{"text":"John Smith","label":"PERSON","confidence":0.95},{"text":"Acme","label":"ORG","confidence":0.9}]`)

	d := NewAIDetector(srv.URL, "test-model", 0.7, nil, testLog())
	got, err := d.Detect(context.Background(), "John Smith works at Acme")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	want := []Mention{
		{Text: "John Smith", Label: "PERSON"},
		{Text: "Acme", Label: "ORG"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d mentions, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("mention %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAIDetectorConfidenceGate(t *testing.T) {
	t.Parallel()
	srv, _ := ollamaStub(t, `[{"text":"maybe","label":"PERSON","confidence":0.4},{"text":"sure","label":"ORG","confidence":0.8}]`)

	d := NewAIDetector(srv.URL, "test-model", 0.7, nil, testLog())
	got, err := d.Detect(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 1 || got[0].Text != "sure" {
		t.Errorf("expected only the high-confidence detection, got %v", got)
	}
}

func TestAIDetectorExtractsArrayFromProse(t *testing.T) {
	t.Parallel()
	srv, _ := ollamaStub(t, `Sure! Here are the detections:
[{"text":"Berlin","label":"GPE","confidence":0.99}]
Hope that helps.`)

	d := NewAIDetector(srv.URL, "test-model", 0.7, nil, testLog())
	got, err := d.Detect(context.Background(), "I flew to Berlin")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 1 || got[0].Text != "Berlin" || got[0].Label != "GPE" {
		t.Errorf("got %v, want [{Berlin GPE}]", got)
	}
}

func TestAIDetectorCacheHitSkipsQuery(t *testing.T) {
	t.Parallel()
	srv, calls := ollamaStub(t, `[{"text":"Alice","label":"PERSON","confidence":0.9}]`)

	d := NewAIDetector(srv.URL, "test-model", 0.7, NewMemoryCache(), testLog())
	text := "Alice called"

	for i := 0; i < 3; i++ {
		got, err := d.Detect(context.Background(), text)
		if err != nil {
			t.Fatalf("Detect %d: %v", i, err)
		}
		if len(got) != 1 || got[0].Text != "Alice" {
			t.Fatalf("Detect %d: got %v", i, got)
		}
	}

	if n := atomic.LoadInt64(calls); n != 1 {
		t.Errorf("expected 1 upstream query, got %d", n)
	}
}

func TestAIDetectorDropsCorruptCacheEntry(t *testing.T) {
	t.Parallel()
	srv, calls := ollamaStub(t, `[{"text":"Bob","label":"PERSON","confidence":0.9}]`)

	cache := NewMemoryCache()
	text := "Bob again"
	key := fmt.Sprintf("%x", md5.Sum([]byte(text)))
	cache.Set(key, "not json at all")

	d := NewAIDetector(srv.URL, "test-model", 0.7, cache, testLog())
	got, err := d.Detect(context.Background(), text)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 1 || got[0].Text != "Bob" {
		t.Fatalf("got %v", got)
	}
	if n := atomic.LoadInt64(calls); n != 1 {
		t.Errorf("corrupt entry should force a re-query, got %d calls", n)
	}
	if raw, ok := cache.Get(key); !ok || raw == "not json at all" {
		t.Errorf("corrupt entry not replaced: ok=%v raw=%q", ok, raw)
	}
}

func TestAIDetectorNoArrayInResponse(t *testing.T) {
	t.Parallel()
	srv, _ := ollamaStub(t, "I could not find any entities, sorry.")

	d := NewAIDetector(srv.URL, "test-model", 0.7, nil, testLog())
	if _, err := d.Detect(context.Background(), "anything"); err == nil {
		t.Fatal("expected error when response carries no JSON array")
	}
}

func TestAIDetectorServerDown(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately unreachable

	d := NewAIDetector(srv.URL, "test-model", 0.7, nil, testLog())
	if _, err := d.Detect(context.Background(), "anything"); err == nil {
		t.Fatal("expected error when endpoint is unreachable")
	}
}
