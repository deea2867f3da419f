package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
)

// Schema is a JSON-schema-shaped parameter declaration. It is the subset the
// argument coercion rules understand; anything else passes through to the
// provider untouched via the Extra map.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	AnyOf                []*Schema          `json:"anyOf,omitempty"`
	Nullable             bool               `json:"nullable,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
}

// IsNull reports whether the schema admits only null.
func (s *Schema) IsNull() bool { return s != nil && s.Type == "null" }

// ToMap renders the schema as a generic JSON object for provider wire
// formats.
func (s *Schema) ToMap() map[string]any {
	if s == nil {
		return map[string]any{"type": "object"}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

// ToolFunc is a tool body. It receives decoded, coerced arguments and
// returns the result text shown to the model. A returned error becomes an
// error tool result, never an evaluation failure.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool declares one invokable tool.
type Tool struct {
	Name        string
	Description string

	// Strict enables full JSON-schema validation of decoded arguments
	// before coercion.
	Strict bool

	Parameters *Schema
	Fn         ToolFunc
}

// Spec is the provider-facing projection of the tool.
func (t *Tool) Spec() ToolSpec {
	return ToolSpec{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters.ToMap(),
		Strict:      t.Strict,
	}
}

// ToolSpec is what adapters render into provider tool declarations.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
	Strict      bool
}

// ParamsFor reflects a JSON-schema parameter declaration from a Go struct
// type. Field tags follow invopop/jsonschema conventions.
func ParamsFor[T any]() (*Schema, error) {
	reflector := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	var zero T
	reflected := reflector.Reflect(&zero)
	data, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("marshal reflected schema: %w", err)
	}
	var schema Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode reflected schema: %w", err)
	}
	return &schema, nil
}

// MustParamsFor is ParamsFor for static declarations.
func MustParamsFor[T any]() *Schema {
	schema, err := ParamsFor[T]()
	if err != nil {
		panic(err)
	}
	return schema
}

// Registry holds the tools owned by one agent. Lookup is by exact name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]*Tool{}}
}

// Register adds or replaces a tool. Tools without a name or body are
// rejected.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool must have a name")
	}
	if t.Fn == nil {
		return fmt.Errorf("tool %q has no function", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	return nil
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Specs returns provider-facing declarations for all tools.
func (r *Registry) Specs() []ToolSpec {
	tools := r.List()
	out := make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Spec())
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
