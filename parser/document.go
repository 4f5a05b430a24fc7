package parser

import (
	"encoding/json"
	"strings"

	"github.com/hupe1980/reactmesh/core"
)

// Document extracts the JSON document of a structured response. Think blocks
// are dropped and prose or code fences around the first object or array are
// ignored. Objects that fail strict decoding get the lenient repairs applied
// to Action JSON.
func (p *Parser) Document(raw string) (any, error) {
	text := p.Clean(raw)

	open := strings.IndexAny(text, "{[")
	if open < 0 {
		return nil, &core.ParseError{Reason: "response contains no JSON document", Raw: raw}
	}

	var v any

	strictErr := json.NewDecoder(strings.NewReader(text[open:])).Decode(&v)
	if strictErr == nil {
		return v, nil
	}

	if text[open] == '{' {
		normalized := normalizeQuotes(text[open:])

		if end, ok := balancedEnd(normalized, 0); ok {
			if err := json.Unmarshal([]byte(repair(normalized[:end])), &v); err == nil {
				return v, nil
			}
		}
	}

	return nil, &core.ParseError{Reason: "response is not a valid JSON document", Raw: raw, Err: strictErr}
}
