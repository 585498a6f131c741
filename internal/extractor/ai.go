package extractor

import (
	"bytes"
	"context"
	"crypto/md5" // #nosec G501 -- content hash for cache keys, not cryptographic security
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"text-pseudonymizer/internal/logger"
)

// aiQueryTimeout bounds one Ollama round trip. The extractor is a
// synchronous collaborator; callers wanting tighter deadlines pass
// their own context.
const aiQueryTimeout = 10 * time.Second

const maxAIResponse = 10 << 20 // 10 MB

// AIDetector is an optional mention source backed by an Ollama model.
// Detections are cached by content hash so repeated texts skip
// inference. Query failures propagate to the caller unmasked; there is
// no retry and no partial result.
type AIDetector struct {
	url        string
	model      string
	confidence float64
	cache      DetectionCache
	client     *http.Client
	log        *logger.Logger
}

// NewAIDetector creates an AI detector against the given Ollama
// endpoint. cache may be nil to disable caching.
func NewAIDetector(endpoint, model string, confidence float64, cache DetectionCache, log *logger.Logger) *AIDetector {
	return &AIDetector{
		url:        endpoint + "/api/generate",
		model:      model,
		confidence: confidence,
		cache:      cache,
		client:     http.DefaultClient,
		log:        log,
	}
}

type aiDetection struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// Detect returns confidence-gated AI detections for the text, serving
// from the cache when the same content was analyzed before.
func (d *AIDetector) Detect(ctx context.Context, text string) ([]Mention, error) {
	key := fmt.Sprintf("%x", md5.Sum([]byte(text))) // #nosec G401 -- cache key, not crypto

	if d.cache != nil {
		if raw, ok := d.cache.Get(key); ok {
			var detections []aiDetection
			if err := json.Unmarshal([]byte(raw), &detections); err == nil {
				return d.toMentions(detections), nil
			}
			d.cache.Delete(key) // unreadable entry; drop and re-query
		}
	}

	detections, err := d.query(ctx, text)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		if raw, err := json.Marshal(detections); err == nil {
			d.cache.Set(key, string(raw))
		}
	}
	return d.toMentions(detections), nil
}

// toMentions filters detections by confidence and maps them to mentions.
func (d *AIDetector) toMentions(detections []aiDetection) []Mention {
	var out []Mention
	for _, det := range detections {
		if det.Text != "" && det.Confidence >= d.confidence {
			out = append(out, Mention{Text: det.Text, Label: det.Label})
		}
	}
	return out
}

// query calls the Ollama API and parses the detection array out of the
// model's text response.
func (d *AIDetector) query(ctx context.Context, text string) ([]aiDetection, error) {
	prompt := fmt.Sprintf(`Analyze the following text for sensitive entity mentions.
Return ONLY a JSON array of detections. Each item must have:
- "text": the exact span found
- "label": an UPPER_SNAKE_CASE entity label (PERSON, ORG, GPE, EMAIL, ...)
- "confidence": float 0.0-1.0

Text to analyze:
%s

Return ONLY the JSON array, no explanation. Example: [{"text":"John Smith","label":"PERSON","confidence":0.95}]`,
		text)

	reqBody, _ := json.Marshal(ollamaRequest{
		Model:  d.model,
		Prompt: prompt,
		Stream: false,
	})

	ctx, cancel := context.WithTimeout(ctx, aiQueryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req) // #nosec G704 -- URL from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("ollama query: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAIResponse+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > maxAIResponse {
		d.log.Warnf("ai_query", "response truncated at %d bytes", maxAIResponse)
		body = body[:maxAIResponse]
	}

	var oresp ollamaResponse
	if err := json.Unmarshal(body, &oresp); err != nil {
		return nil, fmt.Errorf("ollama response parse error: %w", err)
	}

	// Extract the JSON array from the model's text response.
	raw := strings.TrimSpace(oresp.Response)
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array in ollama response")
	}
	raw = raw[start : end+1]

	var detections []aiDetection
	if err := json.Unmarshal([]byte(raw), &detections); err != nil {
		return nil, fmt.Errorf("detection parse error: %w", err)
	}
	return detections, nil
}
