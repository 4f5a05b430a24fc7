package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/hupe1980/reactmesh/internal/util"
)

// Vars are the values available to a template.
type Vars struct {
	// AgentName is the name of the agent the prompt is rendered for.
	AgentName string
	// Role is the agent-specific system prompt (persona, constraints).
	Role string
	// Tools is the rendered, numbered tool list.
	Tools string
	// ToolNames lists the registered tool names in registration order.
	ToolNames []string
	// TerminationMarker is the literal that introduces the final answer.
	TerminationMarker string
	// Extra carries caller-defined values.
	Extra map[string]any
}

// Template produces the system prompt text.
type Template interface {
	Render(vars Vars) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Templates.
type Func func(vars Vars) (string, error)

// Render implements Template.
func (f Func) Render(vars Vars) (string, error) { return f(vars) }

// Static returns a Template that always renders text verbatim.
func Static(text string) Template {
	return Func(func(Vars) (string, error) { return text, nil })
}

// TextTemplate is a Template backed by text/template.
type TextTemplate struct {
	tmpl *template.Template
}

// New parses text into a TextTemplate.
func New(name, text string) (*TextTemplate, error) {
	tmpl, err := util.ParseTemplate(name, text)
	if err != nil {
		return nil, err
	}

	return &TextTemplate{tmpl: tmpl}, nil
}

// Must is like New but panics on error. Intended for package-level templates.
func Must(name, text string) *TextTemplate {
	t, err := New(name, text)
	if err != nil {
		panic(err)
	}

	return t
}

// Load reads and parses a template file. The template is named after the file.
func Load(path string) (*TextTemplate, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- caller-chosen template path
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}

	return New(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), string(data))
}

// Render implements Template.
func (t *TextTemplate) Render(vars Vars) (string, error) {
	out, err := util.RenderTemplate(t.tmpl, vars)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

// Name returns the template name.
func (t *TextTemplate) Name() string { return t.tmpl.Name() }
