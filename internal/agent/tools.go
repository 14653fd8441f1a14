package agent

import (
	"context"
	"log/slog"
)

// Tool is a named capability the agent may call with a single text input.
// The method set matches langchaingo's tools.Tool.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input string) (string, error)
}

// Registry holds tools in registration order.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	if _, ok := r.tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	} else {
		slog.Warn("agent: tool replaced", "name", t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int { return len(r.order) }

// Scope returns a registry restricted to names. Unknown names are skipped;
// an empty list keeps every tool.
func (r *Registry) Scope(names []string) *Registry {
	if len(names) == 0 {
		return r
	}
	scoped := NewRegistry()
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			scoped.Register(t)
		} else {
			slog.Warn("agent: unknown tool in scope", "name", name)
		}
	}
	return scoped
}

// toolInputSchema is the function-call schema shared by every tool: a single
// free-text input.
func toolInputSchema(t Tool) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": map[string]any{
				"type":        "string",
				"description": "Input passed to " + t.Name(),
			},
		},
		"required":             []string{"input"},
		"additionalProperties": false,
	}
}
