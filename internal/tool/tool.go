// Package tool defines the tool-invocation capability exposed to the
// agent loop: fixed tool specifications with declarative parameter
// schemas, typed argument access, and a registry that wraps invocation
// outcomes into conversation tool results.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
)

// ErrNotFound is returned when a tool name is not registered.
var ErrNotFound = errors.New("tool not found")

// Handler is the function signature for tool implementations.
type Handler func(ctx context.Context, args Args) (any, error)

// Spec is a fixed tool definition. The parameter schema is plain data;
// JSONSchema renders it without any runtime introspection.
type Spec struct {
	Name        string
	Description string
	Schema      Schema
	Handler     Handler `json:"-"`
}

// Schema maps parameter names to their declarations.
type Schema map[string]Field

// Field declares a single tool parameter.
type Field struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"-"`
	Enum        []any  `json:"enum,omitempty"`
}

// JSONSchema renders the spec's parameter schema as a JSON Schema
// object suitable for a chat-completions tool declaration.
func (s Spec) JSONSchema() json.RawMessage {
	properties := make(map[string]Field, len(s.Schema))
	var required []string
	for name, field := range s.Schema {
		properties[name] = field
		if field.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		// Schema values are plain data; marshalling cannot fail for
		// well-formed specs.
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}

// Args provides type-safe access to tool arguments.
type Args map[string]any

// String returns a string argument.
func (a Args) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Int returns an integer argument. JSON numbers decode as float64 and
// are truncated.
func (a Args) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// Float returns a float argument.
func (a Args) Float(key string) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return 0.0
}

// Bool returns a boolean argument.
func (a Args) Bool(key string) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return false
}

// Map returns a map argument.
func (a Args) Map(key string) map[string]any {
	if v, ok := a[key].(map[string]any); ok {
		return v
	}
	return nil
}

// Registry holds the fixed tool set for one pipeline construction.
// Tools cannot be added mid-run; the registry is populated before the
// flow starts and only read afterwards.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
	order []string
}

// NewRegistry creates a registry populated with the given specs.
func NewRegistry(specs ...Spec) *Registry {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		r.register(s)
	}
	return r
}

// Register adds a tool spec. Re-registering a name replaces the spec
// but keeps its position.
func (r *Registry) Register(s Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(s)
}

func (r *Registry) register(s Spec) {
	if _, exists := r.specs[s.Name]; !exists {
		r.order = append(r.order, s.Name)
	}
	r.specs[s.Name] = s
}

// Get returns the spec for name.
func (r *Registry) Get(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return s, nil
}

// Specs returns all registered specs in registration order.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}

// Invoke resolves a tool by name and runs it with the given arguments.
// The outcome is always wrapped into a chat.ToolResult: a handler error
// (or an unknown tool) fills the Error field rather than propagating,
// so the agent loop can feed the failure back to the model.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) chat.ToolResult {
	result := chat.ToolResult{ToolName: name, Arguments: args}

	spec, err := r.Get(name)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	out, err := spec.Handler(ctx, Args(args))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Result = out
	return result
}
