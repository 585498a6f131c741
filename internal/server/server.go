// Package server exposes the pseudonymization engine over HTTP.
//
// Public API (one port):
//
//	POST /anonymize   {"text":...} -> {"anonymized_text":..., "mapping":{...}, "match":true}
//	POST /analyze     {"text":...} -> {"entities":[{"text":...,"label":...}, ...]}
//	POST /deanonymize {"text":..., "mapping":{...}} -> {"text":...}
//
// Each request gets its own engine session; nothing is shared across
// requests and nothing survives a request. Extractor and oracle
// failures surface as 502 responses — the server performs no retries
// and no local recovery on the engine's behalf. Empty input yields a
// null result, not an error.
//
// Management API (separate loopback port): see management.go.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"text-pseudonymizer/internal/config"
	"text-pseudonymizer/internal/engine"
	"text-pseudonymizer/internal/extractor"
	"text-pseudonymizer/internal/logger"
	"text-pseudonymizer/internal/metrics"
)

// maxRequestBody bounds the request body size for all API endpoints.
const maxRequestBody = 1 << 20 // 1 MB

// API is the public HTTP API server.
type API struct {
	cfg     *config.Config
	engine  *engine.Engine
	metrics *metrics.Metrics // nil = no metrics
	log     *logger.Logger
}

// NewAPI creates the API server. m may be nil.
func NewAPI(cfg *config.Config, eng *engine.Engine, m *metrics.Metrics, log *logger.Logger) *API {
	return &API{cfg: cfg, engine: eng, metrics: m, log: log}
}

// Handler returns the HTTP handler for the public API, with CORS
// applied and HTTP/2 cleartext (h2c) enabled.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/anonymize", a.handleAnonymize)
	mux.HandleFunc("/analyze", a.handleAnalyze)
	mux.HandleFunc("/deanonymize", a.handleDeanonymize)
	return h2c.NewHandler(a.corsMiddleware(mux), &http2.Server{})
}

// corsMiddleware answers preflights and stamps allowed origins, the
// way the original browser-extension clients expect.
func (a *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && a.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) originAllowed(origin string) bool {
	for _, allowed := range a.cfg.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

type textRequest struct {
	Text string `json:"text"`
}

func (a *API) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	req, requestID, ok := a.readText(w, r)
	if !ok {
		return
	}
	if a.metrics != nil {
		a.metrics.RequestsAnonymize.Add(1)
	}

	type response struct {
		AnonymizedText *string           `json:"anonymized_text"`
		Mapping        map[string]string `json:"mapping,omitempty"`
		Match          *bool             `json:"match,omitempty"`
	}

	session := engine.NewSession(req.Text)
	anonymized, found, err := a.engine.Anonymize(r.Context(), session)
	if err != nil {
		a.log.Errorf("anonymize", "[%s] %v", requestID, err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if !found {
		// No query text: null result by contract, not a failure.
		writeJSON(w, http.StatusOK, response{}, a.log)
		return
	}

	matched, _, err := a.engine.ConfirmMatch(r.Context(), session)
	if err != nil {
		a.log.Errorf("confirm_match", "[%s] %v", requestID, err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if !matched {
		a.log.Warnf("confirm_match", "[%s] round trip mismatch", requestID)
	}

	writeJSON(w, http.StatusOK, response{
		AnonymizedText: &anonymized,
		Mapping:        session.Mapping(),
		Match:          &matched,
	}, a.log)
}

func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, requestID, ok := a.readText(w, r)
	if !ok {
		return
	}
	if a.metrics != nil {
		a.metrics.RequestsAnalyze.Add(1)
	}

	session := engine.NewSession(req.Text)
	mentions, found, err := a.engine.Analyze(r.Context(), session)
	if err != nil {
		a.log.Errorf("analyze", "[%s] %v", requestID, err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	type response struct {
		Entities []extractor.Mention `json:"entities"`
	}
	if !found {
		writeJSON(w, http.StatusOK, response{}, a.log)
		return
	}
	writeJSON(w, http.StatusOK, response{Entities: mentions}, a.log)
}

func (a *API) handleDeanonymize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req struct {
		Text    string            `json:"text"`
		Mapping map[string]string `json:"mapping"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request: need {\"text\":..., \"mapping\":{...}}", http.StatusBadRequest)
		return
	}
	if a.metrics != nil {
		a.metrics.RequestsDeanonymize.Add(1)
	}

	restored := engine.InvertMapping(req.Text, req.Mapping)
	writeJSON(w, http.StatusOK, map[string]string{"text": restored}, a.log)
}

// readText parses the common {"text":...} request shape and assigns a
// request ID for log correlation.
func (a *API) readText(w http.ResponseWriter, r *http.Request) (textRequest, string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return textRequest{}, "", false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request: need {\"text\":\"...\"}", http.StatusBadRequest)
		return textRequest{}, "", false
	}

	requestID := uuid.NewString()
	a.log.Debugf("request", "[%s] %s %d bytes", requestID, r.URL.Path, len(req.Text))
	return req, requestID, true
}

// ListenAndServe starts the public API server.
func (a *API) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", a.cfg.BindAddress, a.cfg.APIPort)
	a.log.Infof("listen", "API on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// --- shared helpers ---

func writeJSON(w http.ResponseWriter, status int, v any, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("write_json", "%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // best-effort error body
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
