package dbt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is a single entry in profiles.yml: a default target and the named
// outputs it can run against.
type Profile struct {
	Target  string                    `yaml:"target"`
	Outputs map[string]map[string]any `yaml:"outputs"`
}

// Profiles is the parsed content of a profiles.yml file.
type Profiles struct {
	entries map[string]Profile
}

// LoadProfiles reads and parses a profiles.yml file. The top-level "config"
// block is dropped; it holds dbt settings, not a profile.
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profiles{}, fmt.Errorf("reading profiles: %w", err)
	}

	entries := map[string]Profile{}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return Profiles{}, fmt.Errorf("parsing profiles %s: %w", path, err)
	}
	delete(entries, "config")

	return Profiles{entries: entries}, nil
}

// Profile returns the named profile.
func (p Profiles) Profile(name string) (Profile, bool) {
	profile, ok := p.entries[name]
	return profile, ok
}

// HasTarget reports whether the named profile defines the given target
// output. An empty target checks the profile's default target instead.
func (p Profiles) HasTarget(profile, target string) bool {
	entry, ok := p.entries[profile]
	if !ok {
		return false
	}
	if target == "" {
		target = entry.Target
	}
	_, ok = entry.Outputs[target]

	return ok
}
