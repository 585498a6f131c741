// Management API: a lightweight loopback HTTP server for runtime
// inspection and detector-rule configuration.
//
// Endpoints:
//
//	GET  /status        - service health, current detector rules
//	GET  /metrics       - runtime counters snapshot
//	POST /rules/add     - add a detector rule {"label":"IBAN","pattern":"..."}
//	POST /rules/remove  - remove rules by label {"label":"IBAN"}
package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"text-pseudonymizer/internal/config"
	"text-pseudonymizer/internal/extractor"
	"text-pseudonymizer/internal/logger"
	"text-pseudonymizer/internal/metrics"
)

// Management is the management API server.
type Management struct {
	cfg       *config.Config
	startTime time.Time
	rules     *extractor.Registry
	token     string           // bearer token for auth; empty = no auth
	metrics   *metrics.Metrics // nil = no metrics
	log       *logger.Logger
}

// NewManagement creates a management server sharing the given rule
// registry with the extractor.
func NewManagement(cfg *config.Config, rules *extractor.Registry, m *metrics.Metrics, log *logger.Logger) *Management {
	s := &Management{
		cfg:       cfg,
		startTime: time.Now(),
		rules:     rules,
		token:     cfg.ManagementToken,
		metrics:   m,
		log:       log,
	}
	if s.token != "" {
		log.Info("auth", "bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the management API.
func (s *Management) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/rules/add", s.handleAddRule)
	mux.HandleFunc("/rules/remove", s.handleRemoveRule)
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Management) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			s.log.Warnf("auth", "unauthorized access from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// labelRegexp validates detector rule labels: UPPER_SNAKE_CASE, since
// labels become pseudonym prefixes (LABEL_n) in anonymized output.
var labelRegexp = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

func validLabel(label string) bool {
	return len(label) <= 64 && labelRegexp.MatchString(label)
}

func (s *Management) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status  string           `json:"status"`
		Uptime  string           `json:"uptime"`
		APIPort int              `json:"apiPort"`
		Rules   []extractor.Rule `json:"detectorRules"`
		Fuzzy   struct {
			Threshold int `json:"threshold"`
		} `json:"fuzzy"`
		AI struct {
			Endpoint string `json:"endpoint"`
			Model    string `json:"model"`
			Enabled  bool   `json:"enabled"`
		} `json:"ai"`
	}

	resp := response{
		Status:  "running",
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		APIPort: s.cfg.APIPort,
		Rules:   s.rules.All(),
	}
	resp.Fuzzy.Threshold = s.cfg.FuzzyThreshold
	resp.AI.Endpoint = s.cfg.OllamaEndpoint
	resp.AI.Model = s.cfg.OllamaModel
	resp.AI.Enabled = s.cfg.UseAIDetection

	writeJSON(w, http.StatusOK, resp, s.log)
}

func (s *Management) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot(), s.log)
}

func (s *Management) handleAddRule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	var req struct {
		Label   string `json:"label"`
		Pattern string `json:"pattern"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Label == "" || req.Pattern == "" {
		http.Error(w, "invalid request: need {\"label\":\"...\",\"pattern\":\"...\"}", http.StatusBadRequest)
		return
	}
	if !validLabel(req.Label) {
		http.Error(w, "invalid label: want UPPER_SNAKE_CASE", http.StatusBadRequest)
		return
	}
	if err := s.rules.Add(req.Label, req.Pattern); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.log.Infof("rules", "added rule %s", req.Label)
	writeJSON(w, http.StatusOK, map[string]string{"added": req.Label}, s.log)
}

func (s *Management) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Label == "" {
		http.Error(w, "invalid request: need {\"label\":\"...\"}", http.StatusBadRequest)
		return
	}
	if !validLabel(req.Label) {
		http.Error(w, "invalid label: want UPPER_SNAKE_CASE", http.StatusBadRequest)
		return
	}
	s.rules.Remove(req.Label)
	s.log.Infof("rules", "removed rule %s", req.Label)
	writeJSON(w, http.StatusOK, map[string]string{"removed": req.Label}, s.log)
}

// ListenAndServe starts the management HTTP server on loopback.
func (s *Management) ListenAndServe() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.ManagementPort)
	s.log.Infof("listen", "management on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
