package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Funcs are the helper functions available to prompt templates.
var Funcs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
	"indent": func(n int, s string) string {
		pad := strings.Repeat(" ", n)
		return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
	},
}

// ParseTemplate parses text as a prompt template. Missing keys are errors so a
// misspelled placeholder fails at render time instead of printing "<no value>".
func ParseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(Funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}

	return tmpl, nil
}

// RenderTemplate executes tmpl with data.
func RenderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %q: %w", tmpl.Name(), err)
	}

	return buf.String(), nil
}
