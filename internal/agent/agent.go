// Package agent runs the bounded model/tool loop behind a chat answer.
package agent

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/talhaa23/portfolio-agent/internal/metrics"
)

const (
	// MaxIterations bounds model round trips per request.
	MaxIterations = 5
	FallbackText  = "Agent stopped due to max iterations."
)

const (
	RoleUser  = "user"
	RoleModel = "model"
	RoleTool  = "tool"
)

type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Message is one turn of the loop's working history. Model turns may carry
// tool calls; tool turns carry one result per call.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

type ToolSpec struct {
	Name        string
	Description string
}

type Response struct {
	Text      string
	ToolCalls []ToolCall
}

type Model interface {
	Generate(ctx context.Context, system string, history []Message, tools []ToolSpec) (*Response, error)
}

type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Registry dispatches tool calls by name.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(t Tool) error {
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs lists the registered tools sorted by name.
func (r *Registry) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, ToolSpec{Name: t.Name(), Description: t.Description()})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

type Result struct {
	Text       string
	Iterations int
	ToolCalls  int
	Aborted    bool
}

type Runner struct {
	model    Model
	registry *Registry

	MaxIterations int
}

func NewRunner(model Model, registry *Registry) *Runner {
	return &Runner{model: model, registry: registry, MaxIterations: MaxIterations}
}

// Run drives the model until it answers without tool calls or the iteration
// limit is reached, in which case the result carries FallbackText.
func (r *Runner) Run(ctx context.Context, system string, history []Message) (*Result, error) {
	msgs := make([]Message, len(history), len(history)+2*r.MaxIterations)
	copy(msgs, history)
	specs := r.registry.Specs()

	res := &Result{}
	for res.Iterations < r.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Iterations++

		resp, err := r.model.Generate(ctx, system, msgs, specs)
		if err != nil {
			return nil, err
		}
		if len(resp.ToolCalls) == 0 {
			res.Text = resp.Text
			metrics.AgentIterations.Observe(float64(res.Iterations))
			return res, nil
		}

		msgs = append(msgs, Message{Role: RoleModel, Content: resp.Text, ToolCalls: resp.ToolCalls})
		results := make([]ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, r.invoke(ctx, call))
			res.ToolCalls++
		}
		msgs = append(msgs, Message{Role: RoleTool, ToolResults: results})
	}

	log.WithField("iterations", res.Iterations).Warn("Agent hit iteration limit")
	metrics.AgentIterations.Observe(float64(res.Iterations))
	res.Text = FallbackText
	res.Aborted = true
	return res, nil
}

func (r *Runner) invoke(ctx context.Context, call ToolCall) ToolResult {
	result := ToolResult{CallID: call.ID, Name: call.Name}

	tool, ok := r.registry.Get(call.Name)
	if !ok {
		log.WithField("tool", call.Name).Warn("Model requested unknown tool")
		metrics.ToolInvocations.WithLabelValues("unknown", "unknown").Inc()
		result.Content = fmt.Sprintf("error: tool %q does not exist", call.Name)
		result.IsError = true
		return result
	}

	out, err := tool.Invoke(ctx, call.Args)
	if err != nil {
		log.WithError(err).WithField("tool", call.Name).Warn("Tool invocation failed")
		metrics.ToolInvocations.WithLabelValues(call.Name, "error").Inc()
		result.Content = "error: " + err.Error()
		result.IsError = true
		return result
	}

	metrics.ToolInvocations.WithLabelValues(call.Name, "ok").Inc()
	result.Content = out
	return result
}
