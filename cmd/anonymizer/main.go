// Command anonymizer is the text pseudonymization HTTP service.
//
// It replaces sensitive spans (names, organizations, locations,
// identifiers, credentials) in submitted text with stable, typed
// pseudonyms (PERSON_1, EMAIL_2, ...) and can reverse the substitution
// to recover the original text. Entity detection combines regex
// detector rules, prose NER and an optional local Ollama model; near-
// duplicate mentions are merged by fuzzy matching before pseudonyms
// are allocated.
//
// Usage:
//
//	# Defaults (API on :8090, management on :8091)
//	./anonymizer
//
//	# Custom ports, AI-assisted detection
//	API_PORT=3000 USE_AI_DETECTION=true ./anonymizer
package main

import (
	"fmt"

	"text-pseudonymizer/internal/config"
	"text-pseudonymizer/internal/engine"
	"text-pseudonymizer/internal/extractor"
	"text-pseudonymizer/internal/logger"
	"text-pseudonymizer/internal/metrics"
	"text-pseudonymizer/internal/server"
	"text-pseudonymizer/internal/similarity"
)

func main() {
	cfg := config.Load()
	log := logger.New("MAIN", cfg.LogLevel)

	printBanner(cfg)

	m := metrics.New()

	// The rule registry is shared between the extractor and the
	// management server. Runtime rule changes are persisted to
	// detector-rules.json and restored on restart.
	rules := extractor.NewRegistry(cfg.RulesFile, "detector-rules.json",
		logger.New("RULES", cfg.LogLevel))

	var ai *extractor.AIDetector
	if cfg.UseAIDetection {
		cache, err := extractor.NewDetectionCache(cfg.AICacheFile, cfg.AICacheSize,
			logger.New("CACHE", cfg.LogLevel))
		if err != nil {
			log.Fatalf("cache_open", "%v", err)
		}
		defer cache.Close() //nolint:errcheck // best-effort close on shutdown
		ai = extractor.NewAIDetector(cfg.OllamaEndpoint, cfg.OllamaModel,
			cfg.AIConfidence, cache, logger.New("AI", cfg.LogLevel))
	}

	ext := extractor.NewComposite(rules, ai, logger.New("EXTRACTOR", cfg.LogLevel))
	eng := engine.New(ext, similarity.Ratio{}, cfg.FuzzyThreshold, m,
		logger.New("ENGINE", cfg.LogLevel))

	// Management API in background. Fatal is intentional: the service
	// should not run without its control plane.
	mgmt := server.NewManagement(cfg, rules, m, logger.New("MGMT", cfg.LogLevel))
	go func() {
		if err := mgmt.ListenAndServe(); err != nil {
			log.Fatalf("management", "%v", err)
		}
	}()

	api := server.NewAPI(cfg, eng, m, logger.New("API", cfg.LogLevel))
	if err := api.ListenAndServe(); err != nil {
		log.Fatalf("api", "%v", err)
	}
}

func printBanner(cfg *config.Config) {
	ai := "disabled"
	if cfg.UseAIDetection {
		ai = fmt.Sprintf("%s (%s)", cfg.OllamaEndpoint, cfg.OllamaModel)
	}

	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║          Text Pseudonymization Service               ║
╚══════════════════════════════════════════════════════╝
  API port        : %d
  Management port : %d
  Fuzzy threshold : %d
  Rules file      : %s
  AI detection    : %s

  Anonymize:
    curl -X POST http://localhost:%d/anonymize -d '{"text":"..."}'

  Check status:
    curl http://localhost:%d/status
`, cfg.APIPort, cfg.ManagementPort,
		cfg.FuzzyThreshold, cfg.RulesFile, ai,
		cfg.APIPort, cfg.ManagementPort)
}
