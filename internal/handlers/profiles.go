// ABOUTME: Handler profiles loaded from the embedded YAML file
// ABOUTME: A profile fixes a handler's prompt, temperature and history window
package handlers

import (
	"embed"
	"fmt"

	"github.com/harper/twin/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed config/profiles.yaml
var configFiles embed.FS

// Profile describes one LLM-backed handler
type Profile struct {
	Label       models.Label `yaml:"label"`
	Temperature float64      `yaml:"temperature"`
	History     int          `yaml:"history"`
	Prompt      string       `yaml:"prompt"`
	ContextNote string       `yaml:"context_note"`
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadProfiles reads the embedded profiles, keyed by label
func LoadProfiles() (map[models.Label]Profile, error) {
	data, err := configFiles.ReadFile("config/profiles.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes and validates a profiles document. Every label must
// have exactly one profile.
func ParseProfiles(data []byte) (map[models.Label]Profile, error) {
	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profiles: %w", err)
	}

	profiles := make(map[models.Label]Profile, len(file.Profiles))
	for _, p := range file.Profiles {
		if !p.Label.IsValid() {
			return nil, fmt.Errorf("profile has unknown label %q", p.Label)
		}
		if _, dup := profiles[p.Label]; dup {
			return nil, fmt.Errorf("duplicate profile for %s", p.Label)
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return nil, fmt.Errorf("profile %s: temperature %.2f out of range", p.Label, p.Temperature)
		}
		if p.History < 1 {
			p.History = 1
		}
		profiles[p.Label] = p
	}

	for _, label := range models.Labels {
		if _, ok := profiles[label]; !ok {
			return nil, fmt.Errorf("missing profile for %s", label)
		}
	}
	return profiles, nil
}
