package tool

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"

	"github.com/hupe1980/reactmesh/internal/util"
)

// ErrUnknownTool is returned by a Refiner step that names a tool the working
// set does not hold.
var ErrUnknownTool = errors.New("unknown tool")

// SpecializeOptions tunes Refiner.Specialize.
type SpecializeOptions struct {
	// Description replaces the original description when non-empty.
	Description string

	// Required lists parameters that become required.
	Required []string

	// Optional lists parameters that stop being required.
	Optional []string
}

// Refiner derives a tailored Registry from a base set of tools. Steps apply in
// call order to a working set; the first failing step is reported by Build and
// later steps become no-ops.
//
//	registry, err := tool.Refine(base).
//	  ExcludePattern(`^datetime\.`).
//	  Specialize("math.power", "square", map[string]any{"b": 2}).
//	  Describe("square", "Square a number").
//	  Build()
type Refiner struct {
	tools []Tool
	err   error
}

// Refine starts a refinement of base. A nil base starts empty.
func Refine(base *Registry) *Refiner {
	return &Refiner{tools: base.Tools()}
}

// Include keeps only the named tools.
func (f *Refiner) Include(names ...string) *Refiner {
	return f.step(func() error {
		keep := make([]Tool, 0, len(names))

		for _, name := range names {
			i := f.index(name)
			if i < 0 {
				return fmt.Errorf("include: %w %q", ErrUnknownTool, name)
			}

			keep = append(keep, f.tools[i])
		}

		f.tools = keep

		return nil
	})
}

// Exclude drops the named tools. Unknown names are ignored.
func (f *Refiner) Exclude(names ...string) *Refiner {
	return f.step(func() error {
		f.tools = slices.DeleteFunc(f.tools, func(t Tool) bool {
			return slices.Contains(names, t.Name())
		})

		return nil
	})
}

// IncludePattern keeps the tools whose name matches the regular expression.
func (f *Refiner) IncludePattern(pattern string) *Refiner {
	return f.filter(pattern, true)
}

// ExcludePattern drops the tools whose name matches the regular expression.
func (f *Refiner) ExcludePattern(pattern string) *Refiner {
	return f.filter(pattern, false)
}

func (f *Refiner) filter(pattern string, keep bool) *Refiner {
	return f.step(func() error {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("tool name pattern %q: %w", pattern, err)
		}

		f.tools = slices.DeleteFunc(f.tools, func(t Tool) bool {
			return re.MatchString(t.Name()) != keep
		})

		return nil
	})
}

// Add appends custom tools to the working set.
func (f *Refiner) Add(tools ...Tool) *Refiner {
	return f.step(func() error {
		f.tools = append(f.tools, tools...)
		return nil
	})
}

// Specialize adds a variant of the named tool under newName with some
// arguments fixed. Fixed parameters disappear from the variant's schema;
// arguments passed explicitly at call time still take precedence.
func (f *Refiner) Specialize(name, newName string, fixed map[string]any, optFns ...func(o *SpecializeOptions)) *Refiner {
	return f.step(func() error {
		i := f.index(name)
		if i < 0 {
			return fmt.Errorf("specialize: %w %q", ErrUnknownTool, name)
		}

		opts := SpecializeOptions{}

		for _, fn := range optFns {
			fn(&opts)
		}

		base := f.tools[i]

		schema := cloneSchema(base.Parameters())
		if props, ok := schema["properties"].(map[string]any); ok {
			for param := range fixed {
				delete(props, param)
			}
		}

		required := slices.Clone(util.RequiredFields(schema))
		required = slices.DeleteFunc(required, func(p string) bool {
			_, isFixed := fixed[p]
			return isFixed || slices.Contains(opts.Optional, p)
		})

		for _, p := range opts.Required {
			if !slices.Contains(required, p) {
				required = append(required, p)
			}
		}

		setRequired(schema, required)

		description := opts.Description
		if description == "" {
			description = base.Description()
		}

		f.tools = append(f.tools, &refinedTool{
			base:        base,
			name:        newName,
			description: description,
			parameters:  schema,
			fixed:       maps.Clone(fixed),
		})

		return nil
	})
}

// Describe replaces the description of the named tool.
func (f *Refiner) Describe(name, description string) *Refiner {
	return f.step(func() error {
		i := f.index(name)
		if i < 0 {
			return fmt.Errorf("describe: %w %q", ErrUnknownTool, name)
		}

		r := refine(f.tools[i])
		r.description = description
		f.tools[i] = r

		return nil
	})
}

// DescribeParameter replaces the description of one parameter of the named tool.
func (f *Refiner) DescribeParameter(name, param, description string) *Refiner {
	return f.step(func() error {
		i := f.index(name)
		if i < 0 {
			return fmt.Errorf("describe parameter: %w %q", ErrUnknownTool, name)
		}

		r := refine(f.tools[i])

		props, _ := r.parameters["properties"].(map[string]any)

		prop, ok := props[param].(map[string]any)
		if !ok {
			return fmt.Errorf("describe parameter: tool %s has no parameter %q", name, param)
		}

		prop["description"] = description
		f.tools[i] = r

		return nil
	})
}

// Build compiles the working set into a Registry.
func (f *Refiner) Build() (*Registry, error) {
	if f.err != nil {
		return nil, f.err
	}

	return NewRegistry(f.tools...)
}

func (f *Refiner) step(fn func() error) *Refiner {
	if f.err == nil {
		f.err = fn()
	}

	return f
}

func (f *Refiner) index(name string) int {
	return slices.IndexFunc(f.tools, func(t Tool) bool { return t.Name() == name })
}

// refinedTool overrides the surface of a base tool and optionally pre-fills
// some of its arguments.
type refinedTool struct {
	base        Tool
	name        string
	description string
	parameters  map[string]any
	fixed       map[string]any
}

// refine wraps t so its surface can be changed without touching the original.
func refine(t Tool) *refinedTool {
	if r, ok := t.(*refinedTool); ok {
		c := *r
		c.parameters = cloneSchema(r.parameters)

		return &c
	}

	return &refinedTool{
		base:        t,
		name:        t.Name(),
		description: t.Description(),
		parameters:  cloneSchema(t.Parameters()),
	}
}

func (t *refinedTool) Name() string { return t.name }

func (t *refinedTool) Description() string { return t.description }

func (t *refinedTool) Parameters() map[string]any { return t.parameters }

func (t *refinedTool) Call(ctx context.Context, args map[string]any) (any, error) {
	if len(t.fixed) == 0 {
		return t.base.Call(ctx, args)
	}

	merged := maps.Clone(t.fixed)
	maps.Copy(merged, args)

	return t.base.Call(ctx, merged)
}

func setRequired(schema map[string]any, required []string) {
	if len(required) == 0 {
		delete(schema, "required")
		return
	}

	schema["required"] = required
}

// cloneSchema copies the top level, the properties map and every property so
// refinements never write through to the original tool.
func cloneSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	out := maps.Clone(schema)

	if props, ok := schema["properties"].(map[string]any); ok {
		cp := make(map[string]any, len(props))

		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				cp[name] = maps.Clone(pm)
			} else {
				cp[name] = p
			}
		}

		out["properties"] = cp
	}

	if req := util.RequiredFields(schema); req != nil {
		out["required"] = slices.Clone(req)
	}

	return out
}
