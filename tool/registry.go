package tool

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/hupe1980/reactmesh/internal/util"
)

// ErrDuplicateTool is returned when two tools share a name.
var ErrDuplicateTool = errors.New("duplicate tool name")

type entry struct {
	tool   Tool
	schema *jsonschema.Resolved
}

// Registry is an immutable set of tools keyed by name. Parameter schemas are
// compiled once at construction. A Registry is read-only after construction and
// safe to share between concurrent execution loops; a nil *Registry is empty.
type Registry struct {
	entries map[string]entry
	order   []string
}

// NewRegistry builds a registry. It fails on empty or duplicate names and on
// parameter schemas that do not compile.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{entries: make(map[string]entry, len(tools))}

	if err := r.add(tools...); err != nil {
		return nil, err
	}

	return r, nil
}

// With returns a new registry holding the receiver's tools plus extra.
func (r *Registry) With(extra ...Tool) (*Registry, error) {
	out := &Registry{entries: make(map[string]entry, r.Len()+len(extra))}

	if r != nil {
		for _, name := range r.order {
			out.entries[name] = r.entries[name]
		}

		out.order = append(out.order, r.order...)
	}

	if err := out.add(extra...); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *Registry) add(tools ...Tool) error {
	for _, t := range tools {
		if t == nil {
			return errors.New("nil tool")
		}

		name := t.Name()
		if strings.TrimSpace(name) == "" {
			return errors.New("tool name must not be empty")
		}

		if _, exists := r.entries[name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}

		schema, err := util.CompileSchema(t.Parameters())
		if err != nil {
			return fmt.Errorf("compile parameter schema of tool %q: %w", name, err)
		}

		r.entries[name] = entry{tool: t, schema: schema}
		r.order = append(r.order, name)
	}

	return nil
}

// Lookup finds a tool by exact name, falling back to a case-insensitive match
// on the trimmed name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	e, ok := r.lookup(name)
	return e.tool, ok
}

func (r *Registry) lookup(name string) (entry, bool) {
	if r == nil {
		return entry{}, false
	}

	if e, ok := r.entries[name]; ok {
		return e, true
	}

	want := strings.TrimSpace(name)
	for _, n := range r.order {
		if strings.EqualFold(n, want) {
			return r.entries[n], true
		}
	}

	return entry{}, false
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}

	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []Tool {
	if r == nil {
		return nil
	}

	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.entries[n].tool)
	}

	return out
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}

	return len(r.order)
}

// Describe renders the numbered tool list embedded in system prompts:
//
//	1. add: Add two numbers
//	   - a (number, required): first addend
func (r *Registry) Describe() string {
	if r.Len() == 0 {
		return "No tools available."
	}

	var b strings.Builder

	for i, t := range r.Tools() {
		if i > 0 {
			b.WriteString("\n")
		}

		fmt.Fprintf(&b, "%d. %s: %s", i+1, t.Name(), t.Description())

		schema := t.Parameters()
		props, _ := schema["properties"].(map[string]any)

		required := make(map[string]bool)
		for _, name := range util.RequiredFields(schema) {
			required[name] = true
		}

		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			prop, _ := props[name].(map[string]any)
			typ, _ := prop["type"].(string)

			if typ == "" {
				typ = "any"
			}

			need := "optional"
			if required[name] {
				need = "required"
			}

			fmt.Fprintf(&b, "\n   - %s (%s, %s)", name, typ, need)

			if desc, _ := prop["description"].(string); desc != "" {
				fmt.Fprintf(&b, ": %s", desc)
			}
		}
	}

	return b.String()
}
