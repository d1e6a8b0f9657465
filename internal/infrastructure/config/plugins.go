package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	toml "github.com/pelletier/go-toml/v2"
)

// PluginRule contributes extra scoped/escaped property keys to a sandbox.
// Entries with no usable keys are tolerated and ignored downstream.
type PluginRule struct {
	ScopeProperties  []string `yaml:"scopeProperties" toml:"scopeProperties" json:"scopeProperties"`
	EscapeProperties []string `yaml:"escapeProperties" toml:"escapeProperties" json:"escapeProperties"`
}

// PluginRules is a decoded plugin-rule file: a global list applied to every
// application plus per-application lists keyed by name.
type PluginRules struct {
	Global []PluginRule            `yaml:"global" toml:"global" json:"global"`
	Apps   map[string][]PluginRule `yaml:"apps" toml:"apps" json:"apps"`
}

// LoadPluginRules reads a rule file, decoding by extension (.yaml/.yml/.toml).
func LoadPluginRules(path string) (*PluginRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin rules: %w", err)
	}

	var rules PluginRules
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("failed to parse plugin rules %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("failed to parse plugin rules %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported plugin rule format: %s", path)
	}

	return &rules, nil
}

// ForApp returns the global rules followed by the rules for the named
// application. Safe to call on a nil receiver.
func (r *PluginRules) ForApp(name string) []PluginRule {
	if r == nil {
		return nil
	}

	out := make([]PluginRule, 0, len(r.Global)+len(r.Apps[name]))
	out = append(out, r.Global...)
	out = append(out, r.Apps[name]...)
	return out
}
