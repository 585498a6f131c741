package extractor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"text-pseudonymizer/internal/logger"
)

// Rule is one detector rule: a label and the regex emitting spans for it.
type Rule struct {
	Label   string `yaml:"label" json:"label"`
	Pattern string `yaml:"pattern" json:"pattern"`
}

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Registry holds the ordered, mutable list of detector rules.
// It is shared between the extractor and the management server.
// Runtime changes are persisted to disk via atomic file writes so they
// survive restarts.
type Registry struct {
	mu          sync.RWMutex
	rules       []compiledRule
	persistPath string // empty = no persistence
	log         *logger.Logger
}

// NewRegistry creates a registry seeded from the built-in defaults,
// optionally replaced by a YAML rule file. If persistPath is non-empty
// and the file exists, its contents take precedence over both — it
// represents runtime overrides.
func NewRegistry(rulesFile, persistPath string, log *logger.Logger) *Registry {
	r := &Registry{persistPath: persistPath, log: log}

	if persistPath != "" {
		rules, err := r.loadOverrides()
		switch {
		case err == nil:
			r.setRules(rules)
			log.Infof("rules_load", "%d rules from overrides %s", len(rules), persistPath)
			return r
		case !os.IsNotExist(err):
			log.Warnf("rules_load", "failed to load %s: %v (falling back)", persistPath, err)
		}
	}

	if rulesFile != "" {
		if rules, err := loadRuleFile(rulesFile); err == nil {
			r.setRules(rules)
			log.Infof("rules_load", "%d rules from %s", len(rules), rulesFile)
			return r
		} else if !os.IsNotExist(err) {
			log.Warnf("rules_load", "failed to load %s: %v (using defaults)", rulesFile, err)
		}
	}

	r.setRules(defaultRules())
	return r
}

// setRules replaces the rule list, skipping rules that fail to compile.
func (r *Registry) setRules(rules []Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = r.rules[:0]
	for _, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			r.log.Warnf("rules_compile", "skipping rule %s: %v", rule.Label, err)
			continue
		}
		r.rules = append(r.rules, compiledRule{rule: rule, re: re})
	}
}

// Match runs every rule over the text, in rule order, and returns the
// labeled spans found.
func (r *Registry) Match(text string) []Mention {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Mention
	for _, cr := range r.rules {
		for _, m := range cr.re.FindAllString(text, -1) {
			out = append(out, Mention{Text: m, Label: cr.rule.Label})
		}
	}
	return out
}

// Add appends a rule to the registry and persists the new list.
// The pattern must compile.
func (r *Registry) Add(label, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile rule %s: %w", label, err)
	}
	r.mu.Lock()
	r.rules = append(r.rules, compiledRule{rule: Rule{Label: label, Pattern: pattern}, re: re})
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(snapshot)
	return nil
}

// Remove deletes every rule with the given label and persists the new
// list. Removing an unknown label is a no-op.
func (r *Registry) Remove(label string) {
	r.mu.Lock()
	kept := r.rules[:0]
	for _, cr := range r.rules {
		if cr.rule.Label != label {
			kept = append(kept, cr)
		}
	}
	r.rules = kept
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(snapshot)
}

// All returns a copy of the current rule list in order.
func (r *Registry) All() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// snapshotLocked returns a copy of the current rules. Caller holds r.mu.
func (r *Registry) snapshotLocked() []Rule {
	out := make([]Rule, 0, len(r.rules))
	for _, cr := range r.rules {
		out = append(out, cr.rule)
	}
	return out
}

// loadRuleFile reads a YAML rule list.
func loadRuleFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rules, nil
}

// loadOverrides reads the persisted JSON rule overrides.
func (r *Registry) loadOverrides() ([]Rule, error) {
	data, err := os.ReadFile(r.persistPath)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.persistPath, err)
	}
	return rules, nil
}

// persist writes the given rule snapshot to disk atomically.
// It does NOT hold r.mu, so it won't block Match calls.
func (r *Registry) persist(rules []Rule) {
	if r.persistPath == "" {
		return
	}

	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		r.log.Errorf("rules_persist", "marshal: %v", err)
		return
	}

	// Atomic write: temp file → rename
	dir := filepath.Dir(r.persistPath)
	tmp, err := os.CreateTemp(dir, ".detector-rules-*.tmp")
	if err != nil {
		r.log.Errorf("rules_persist", "create temp: %v", err)
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()        //nolint:errcheck // best-effort cleanup
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		r.log.Errorf("rules_persist", "write: %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		r.log.Errorf("rules_persist", "close: %v", err)
		return
	}
	if err := os.Rename(tmpName, r.persistPath); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		r.log.Errorf("rules_persist", "rename: %v", err)
	}
}
