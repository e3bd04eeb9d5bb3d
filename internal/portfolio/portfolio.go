// Package portfolio holds the static profile data the assistant looks up
// through its tools.
package portfolio

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultProfile []byte

// Item is a project or certificate.
type Item struct {
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Stack       []string `yaml:"stack" json:"stack"`
	Link        string   `yaml:"link" json:"link"`
	WhenToUse   string   `yaml:"whenToUse" json:"whenToUse"`
}

type SkillGroup struct {
	Category string   `yaml:"category" json:"category"`
	Items    []string `yaml:"items" json:"items"`
}

type Profile struct {
	Owner        string       `yaml:"owner" json:"owner"`
	Projects     []Item       `yaml:"projects" json:"projects"`
	Certificates []Item       `yaml:"certificates" json:"certificates"`
	Skills       []SkillGroup `yaml:"skills" json:"skills"`
}

// Load reads a profile from path, or the built-in profile when path is empty.
func Load(path string) (*Profile, error) {
	if path == "" {
		return Parse(defaultProfile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio file %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse portfolio: %w", err)
	}
	if p.Owner == "" {
		return nil, errors.New("portfolio owner is required")
	}
	for i, it := range append(append([]Item{}, p.Projects...), p.Certificates...) {
		if it.Title == "" {
			return nil, fmt.Errorf("portfolio item %d has no title", i)
		}
	}
	return &p, nil
}
