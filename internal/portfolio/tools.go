package portfolio

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/talhaa23/portfolio-agent/internal/agent"
)

const (
	ToolProjects     = "getProjects"
	ToolCertificates = "getCertificates"
	ToolSkills       = "getSkills"
)

// lookupTool serves a fixed JSON document. Arguments are ignored.
type lookupTool struct {
	name        string
	description string
	body        string
}

func (t *lookupTool) Name() string        { return t.name }
func (t *lookupTool) Description() string { return t.description }

func (t *lookupTool) Invoke(_ context.Context, _ map[string]any) (string, error) {
	return t.body, nil
}

func newLookupTool(name, description string, v any) (*lookupTool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s data: %w", name, err)
	}
	return &lookupTool{name: name, description: description, body: string(b)}, nil
}

// Tools returns the read-only lookup tools over p.
func (p *Profile) Tools() ([]agent.Tool, error) {
	specs := []struct {
		name, desc string
		data       any
	}{
		{ToolProjects, fmt.Sprintf("Returns a list of %s's projects. Use this when the user asks about projects, work, or portfolio.", p.Owner), p.Projects},
		{ToolCertificates, fmt.Sprintf("Returns a list of %s's certificates and courses. Use this when the user asks about certifications, learning, or skills validation.", p.Owner), p.Certificates},
		{ToolSkills, fmt.Sprintf("Returns %s's skills grouped by category. Use this when the user asks about skills, tech stack, or job fit.", p.Owner), p.Skills},
	}

	tools := make([]agent.Tool, 0, len(specs))
	for _, s := range specs {
		t, err := newLookupTool(s.name, s.desc, s.data)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}
