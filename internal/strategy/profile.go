package strategy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Profile is the per-strategy parameter profile loaded from the config
// tree. A missing file yields the default profile.
type Profile struct {
	StrategyID     string         `yaml:"strategy_id"`
	ImplVersion    string         `yaml:"impl_version"`
	ProfileVersion string         `yaml:"profile_version"`
	Defaults       map[string]any `yaml:"defaults"`
}

// DefaultProfileVersion names the implicit profile used when no file
// overrides it.
const DefaultProfileVersion = "default"

// LoadProfile reads {dir}/{strategyID}.yaml. Absence is not an error: the
// default profile applies.
func LoadProfile(dir, strategyID, implVersion string) (*Profile, error) {
	profile := &Profile{
		StrategyID:     strategyID,
		ImplVersion:    implVersion,
		ProfileVersion: DefaultProfileVersion,
		Defaults:       map[string]any{},
	}
	if dir == "" {
		return profile, nil
	}
	path := filepath.Join(dir, strategyID+".yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return profile, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read strategy profile %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parse strategy profile %s: %w", path, err)
	}
	if profile.ProfileVersion == "" {
		profile.ProfileVersion = DefaultProfileVersion
	}
	if profile.ImplVersion == "" {
		profile.ImplVersion = implVersion
	}
	return profile, nil
}

// Params merges the profile defaults with overrides, overrides winning.
func (p *Profile) Params(overrides Params) Params {
	return Params(p.Defaults).Merge(overrides)
}
