package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BotProfile describes one downstream persona: where its queries go and which
// audience tag, if any, rides along.
type BotProfile struct {
	Name         string `yaml:"name"`
	Endpoint     string `yaml:"endpoint"`
	AudienceType string `yaml:"audienceType,omitempty"`
	PageID       string `yaml:"pageId,omitempty"` // telemetry page id
}

// BotMap is the persona registry loaded from bots.yaml. The mapping is data,
// not code: adding a persona is a config change.
type BotMap struct {
	Default string                `yaml:"default"`
	Bots    map[string]BotProfile `yaml:"bots"`
}

// LoadBots reads the persona map from a YAML file. Endpoint values support
// the same ${VAR} / ${VAR:-default} expansion as the main config.
func LoadBots(path string) (*BotMap, error) {
	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("cannot read bot map %s: %w", path, err)
	}
	data = []byte(ExpandEnvVars(string(data)))

	var m BotMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("cannot parse bot map %s: %w", path, err)
	}

	if len(m.Bots) == 0 {
		return nil, fmt.Errorf("bot map %s: no bots defined", path)
	}
	if m.Default == "" {
		return nil, fmt.Errorf("bot map %s: default bot is required", path)
	}
	if _, ok := m.Bots[m.Default]; !ok {
		return nil, fmt.Errorf("bot map %s: default bot %q is not defined", path, m.Default)
	}
	for id, b := range m.Bots {
		if b.Endpoint == "" {
			return nil, fmt.Errorf("bot map %s: bot %q has no endpoint", path, id)
		}
	}

	return &m, nil
}

// Profile returns the profile for a persona id.
func (m *BotMap) Profile(id string) (BotProfile, bool) {
	b, ok := m.Bots[id]
	return b, ok
}

// IsDefault reports whether id is the default persona.
func (m *BotMap) IsDefault(id string) bool { return id == m.Default }

// Resolve maps a user choice to a persona id. Accepts a persona id verbatim
// ("bot_2") or a bare menu number ("2" → "bot_2").
func (m *BotMap) Resolve(choice string) (string, bool) {
	if _, ok := m.Bots[choice]; ok {
		return choice, true
	}
	id := "bot_" + choice
	if _, ok := m.Bots[id]; ok {
		return id, true
	}
	return "", false
}
