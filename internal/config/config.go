// Package config loads and holds all service configuration.
// Settings are read from anonymizer-config.json first, then environment
// variables; env vars win. Both sources are optional — the defaults run
// a fully local service with AI-assisted detection disabled.
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
)

// Config holds the full service configuration.
type Config struct {
	APIPort        int    `json:"apiPort"`
	ManagementPort int    `json:"managementPort"`
	BindAddress    string `json:"bindAddress"`
	LogLevel       string `json:"logLevel"`

	// ManagementToken, when non-empty, enables bearer auth on the
	// management API.
	ManagementToken string `json:"managementToken"`

	// FuzzyThreshold is the similarity score (0-100) at or above which two
	// mention surfaces are treated as the same real-world entity.
	FuzzyThreshold int `json:"fuzzyThreshold"`

	// RulesFile is the YAML file holding detector rule definitions.
	// Runtime rule changes are persisted next to it as JSON overrides.
	RulesFile string `json:"rulesFile"`

	// CORSOrigins lists allowed Origin values for the API; "*" allows any.
	CORSOrigins []string `json:"corsOrigins"`

	// Optional Ollama-backed mention source.
	UseAIDetection bool    `json:"useAIDetection"`
	OllamaEndpoint string  `json:"ollamaEndpoint"`
	OllamaModel    string  `json:"ollamaModel"`
	AIConfidence   float64 `json:"aiConfidenceThreshold"`
	AICacheFile    string  `json:"aiCacheFile"`
	AICacheSize    int     `json:"aiCacheSize"`
}

// Load returns config with defaults overridden by anonymizer-config.json
// and env vars.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "anonymizer-config.json")
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		APIPort:        8090,
		ManagementPort: 8091,
		BindAddress:    "127.0.0.1",
		LogLevel:       "info",
		FuzzyThreshold: 80,
		RulesFile:      "detector-rules.yaml",
		CORSOrigins:    []string{"*"},
		UseAIDetection: false,
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "qwen2.5:3b",
		AIConfidence:   0.7,
		AICacheFile:    "ai-detections.db",
		AICacheSize:    4096,
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.APIPort = n
		}
	}
	if v := os.Getenv("MANAGEMENT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ManagementPort = n
		}
	}
	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MANAGEMENT_TOKEN"); v != "" {
		cfg.ManagementToken = v
	}
	if v := os.Getenv("FUZZY_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FuzzyThreshold = n
		}
	}
	if v := os.Getenv("RULES_FILE"); v != "" {
		cfg.RulesFile = v
	}
	if v := os.Getenv("USE_AI_DETECTION"); v == "true" {
		cfg.UseAIDetection = true
	}
	if v := os.Getenv("OLLAMA_ENDPOINT"); v != "" {
		cfg.OllamaEndpoint = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.OllamaModel = v
	}
	if v := os.Getenv("AI_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.AIConfidence = f
		}
	}
	if v := os.Getenv("AI_CACHE_FILE"); v != "" {
		cfg.AICacheFile = v
	}
	if v := os.Getenv("AI_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AICacheSize = n
		}
	}
}
