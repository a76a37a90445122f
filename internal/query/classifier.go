package query

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule maps any of its keywords to an intent.
type Rule struct {
	Intent     Intent   `yaml:"intent"`
	Keywords   []string `yaml:"keywords"`
	Confidence float64  `yaml:"confidence"`
	Reason     string   `yaml:"reason"`
}

func (r Rule) matches(lower string) bool {
	for _, k := range r.Keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// RuleTable is the ordered classification table.
type RuleTable struct {
	Rules   []Rule `yaml:"rules"`
	Default Rule   `yaml:"default"`
}

// Classification is the outcome of Classify.
type Classification struct {
	Intent     Intent
	Confidence float64
	Reasoning  string
}

// ParseRules decodes and checks a rule table document.
func ParseRules(data []byte) (RuleTable, error) {
	var t RuleTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return RuleTable{}, fmt.Errorf("parse rules: %w", err)
	}
	if len(t.Rules) == 0 {
		return RuleTable{}, fmt.Errorf("rule table has no rules")
	}
	for i, r := range t.Rules {
		if !r.Intent.valid() {
			return RuleTable{}, fmt.Errorf("rule %d: unknown intent %q", i, r.Intent)
		}
		if len(r.Keywords) == 0 {
			return RuleTable{}, fmt.Errorf("rule %d: no keywords", i)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return RuleTable{}, fmt.Errorf("rule %d: confidence %.2f out of range", i, r.Confidence)
		}
		for j, k := range r.Keywords {
			t.Rules[i].Keywords[j] = strings.ToLower(k)
		}
	}
	if t.Default.Intent == "" {
		t.Default = Rule{Intent: IntentClarification, Confidence: 0.5}
	}
	return t, nil
}

// Classifier evaluates a rule table in order. The table can be swapped at
// runtime with Reload.
type Classifier struct {
	mu    sync.RWMutex
	table RuleTable
}

// NewClassifier returns a classifier over the built-in rules.
func NewClassifier() *Classifier {
	t, err := ParseRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("built-in query rules: %v", err))
	}
	return &Classifier{table: t}
}

// LoadClassifier reads rules from path, or the built-in rules when path is empty.
func LoadClassifier(path string) (*Classifier, error) {
	c := NewClassifier()
	if path == "" {
		return c, nil
	}
	if err := c.Reload(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the table with the one in path. On error the current
// table is kept.
func (c *Classifier) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rules: %w", err)
	}
	t, err := ParseRules(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.table = t
	c.mu.Unlock()
	return nil
}

// Rules returns a copy of the active rules.
func (c *Classifier) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Rule(nil), c.table.Rules...)
}

func (c *Classifier) Classify(text string) Classification {
	lower := strings.ToLower(text)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.table.Rules {
		if r.matches(lower) {
			return Classification{Intent: r.Intent, Confidence: r.Confidence, Reasoning: r.Reason}
		}
	}
	d := c.table.Default
	return Classification{Intent: d.Intent, Confidence: d.Confidence, Reasoning: d.Reason}
}
