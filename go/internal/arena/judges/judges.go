package judges

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed judges.yaml
var defaultRegistry []byte

// FallbackColor is used for personas missing from the registry
const FallbackColor = "#9ca3af"

// Profile is the display profile of a judge persona
type Profile struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Color       string `yaml:"color" json:"color"`
	Catchphrase string `yaml:"catchphrase" json:"catchphrase"`
}

type registryFile struct {
	Judges []Profile `yaml:"judges"`
}

// Registry resolves judge ids to display profiles
type Registry struct {
	order    []string
	profiles map[string]Profile
}

// Default returns the registry embedded in the binary.
func Default() *Registry {
	r, err := Parse(defaultRegistry)
	if err != nil {
		panic(fmt.Sprintf("embedded judge registry: %v", err))
	}
	return r
}

// Parse builds a registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse judge registry: %w", err)
	}

	r := &Registry{profiles: make(map[string]Profile, len(file.Judges))}
	for _, p := range file.Judges {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("judge without id")
		}
		if _, dup := r.profiles[id]; dup {
			return nil, fmt.Errorf("duplicate judge %q", id)
		}
		p.ID = id
		if p.Name == "" {
			p.Name = id
		}
		if p.Color == "" {
			p.Color = FallbackColor
		}
		r.profiles[id] = p
		r.order = append(r.order, id)
	}
	return r, nil
}

// Resolve returns the profile for id. Unknown ids resolve to a fallback carrying the raw id.
func (r *Registry) Resolve(id string) Profile {
	if p, ok := r.profiles[id]; ok {
		return p
	}
	name := id
	if name == "" {
		name = "Mystery Judge"
	}
	return Profile{ID: id, Name: name, Color: FallbackColor}
}

// Name returns the display name for id.
func (r *Registry) Name(id string) string {
	return r.Resolve(id).Name
}

// IDs lists the candidate ids in registry order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}
