// Package tools holds the capabilities the reasoning engine may invoke.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Parameter describes one argument of a tool.
type Parameter struct {
	Name        string
	Type        string // JSON schema type: string, number, integer, boolean
	Description string
	Enum        []string
	Required    bool
}

// Definition is the model-facing description of a tool.
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
	// Direct tools answer the user themselves; their output is spoken as the
	// response without another model round.
	Direct bool
}

// Tool is a capability exposed to the reasoning engine. Invoke never fails:
// problems are reported as text the assistant can speak.
type Tool interface {
	Definition() Definition
	Invoke(ctx context.Context, args map[string]any) string
}

// Registry maps tool names to tools.
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
	name := strings.TrimSpace(t.Definition().Name)
	if name == "" {
		return fmt.Errorf("register tool: name must not be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("register tool %q: already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Definitions lists registered tools sorted by name.
func (r *Registry) Definitions() []Definition {
	if r == nil {
		return nil
	}
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tools)
}

// StringArg reads a string argument, tolerating non-string scalars.
func StringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
