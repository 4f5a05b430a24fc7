package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/reactmesh/core"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// decodeAction extracts the Action JSON that follows an Action label. The
// opening brace must appear before limit (the next label); the span itself may
// run past limit because labels can occur inside JSON strings.
func decodeAction(text string, from, limit int) (core.Action, int, error) {
	idx := strings.IndexByte(text[from:limit], '{')
	if idx < 0 {
		return core.Action{}, 0, &core.ParseError{
			Reason: "Action is not followed by a JSON object",
			Raw:    strings.TrimSpace(text[from:limit]),
		}
	}

	open := from + idx

	var strictErr error

	if end, ok := balancedEnd(text, open); ok {
		action, err := strictAction(text[open:end])
		if err == nil {
			return action, end, nil
		}

		strictErr = err
	}

	// Lenient pass. Quote normalization maps rune to rune, so rune offsets in the
	// normalized text line up with the original.
	normalized := normalizeQuotes(text[open:])

	end, ok := balancedEnd(normalized, 0)
	if !ok {
		return core.Action{}, 0, &core.ParseError{
			Reason: "Action JSON has unbalanced braces",
			Raw:    strings.TrimSpace(text[open:]),
			Err:    strictErr,
		}
	}

	action, err := decodePayload(repair(normalized[:end]))
	if err != nil {
		if strictErr == nil {
			strictErr = err
		}

		return core.Action{}, 0, &core.ParseError{
			Reason: "Action JSON could not be decoded",
			Raw:    normalized[:end],
			Err:    strictErr,
		}
	}

	runes := utf8.RuneCountInString(normalized[:end])
	origEnd := open

	for i := 0; i < runes; i++ {
		_, size := utf8.DecodeRuneInString(text[origEnd:])
		origEnd += size
	}

	action.Raw = text[open:origEnd]

	return action, origEnd, nil
}

// strictAction decodes span as JSON, accepting template-escaped doubled braces.
func strictAction(span string) (core.Action, error) {
	action, err := decodePayload(span)
	if err == nil {
		action.Raw = span
		return action, nil
	}

	if strings.HasPrefix(span, "{{") {
		if action, derr := decodePayload(collapseBraces(span)); derr == nil {
			action.Raw = span
			return action, nil
		}
	}

	return core.Action{}, err
}

func decodePayload(span string) (core.Action, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(span), &payload); err != nil {
		return core.Action{}, err
	}

	name, _ := payload["tool"].(string)
	name = strings.TrimSpace(name)

	rawArgs, hasArgs := payload["args"]
	if !hasArgs {
		rawArgs, hasArgs = payload["arguments"]
	}

	if name == "" && !hasArgs {
		return core.Action{}, fmt.Errorf("action JSON has no \"tool\" field")
	}

	args := map[string]any{}

	switch v := rawArgs.(type) {
	case nil:
	case map[string]any:
		args = v
	case string:
		// Some models stringify the argument object.
		if strings.TrimSpace(v) != "" {
			if err := json.Unmarshal([]byte(v), &args); err != nil {
				return core.Action{}, fmt.Errorf("action \"args\" must be an object: %w", err)
			}
		}
	default:
		return core.Action{}, fmt.Errorf("action \"args\" must be an object, got %T", rawArgs)
	}

	return core.Action{Tool: name, Args: args}, nil
}

// balancedEnd returns the offset just past the brace that closes s[open].
// Braces inside double-quoted strings are ignored.
func balancedEnd(s string, open int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := open; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}

			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}

	return 0, false
}

func normalizeQuotes(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '“', '”', '„', '‟', '″':
			return '"'
		case '‘', '’', '‚', '‛', '′':
			return '\''
		default:
			return r
		}
	}, s)
}

// repair applies the lenient fixes: single-quoted JSON, raw control characters
// inside strings, trailing commas and doubled braces.
func repair(s string) string {
	if !strings.Contains(s, `"`) {
		s = strings.ReplaceAll(s, "'", `"`)
	}

	s = escapeControlChars(s)
	s = trailingComma.ReplaceAllString(s, "$1")

	if strings.HasPrefix(s, "{{") {
		s = collapseBraces(s)
	}

	return s
}

func collapseBraces(s string) string {
	s = strings.ReplaceAll(s, "{{", "{")
	return strings.ReplaceAll(s, "}}", "}")
}

// escapeControlChars escapes raw newlines, carriage returns and tabs that appear
// inside JSON string literals.
func escapeControlChars(s string) string {
	var b strings.Builder

	b.Grow(len(s))

	inString := false
	escaped := false

	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			case r == '\n':
				b.WriteString(`\n`)
				continue
			case r == '\r':
				b.WriteString(`\r`)
				continue
			case r == '\t':
				b.WriteString(`\t`)
				continue
			}
		} else if r == '"' {
			inString = true
		}

		b.WriteRune(r)
	}

	return b.String()
}
