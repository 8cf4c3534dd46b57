package tool

import (
	"fmt"

	"github.com/hupe1980/agentrelay/model"
)

// Registry is an ordered, name indexed set of tools. It is immutable after
// construction and safe to share between runs.
type Registry struct {
	order []Tool
	index map[string]Tool
}

// NewRegistry builds a registry. Duplicate names are rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{index: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t == nil {
			continue
		}
		if _, dup := r.index[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name())
		}
		r.index[t.Name()] = t
		r.order = append(r.order, t)
	}
	return r, nil
}

// Lookup resolves a tool by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.index[name]
	return t, ok
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []Tool {
	if r == nil {
		return nil
	}
	return append([]Tool(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Definitions returns the model facing definitions in registration order.
func (r *Registry) Definitions() []model.ToolDefinition {
	if r == nil {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(r.order))
	for _, t := range r.order {
		defs = append(defs, Definition(t))
	}
	return defs
}

// Definition converts a tool to its model facing definition.
func Definition(t Tool) model.ToolDefinition {
	return model.NewFunctionDefinition(t.Name(), t.Description(), t.Parameters())
}
