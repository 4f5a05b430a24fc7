// Package builtin provides a small set of general purpose tools (arithmetic,
// text, time and JSON helpers) that are useful for demos and as building blocks
// for agents that need deterministic utilities.
package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/reactmesh/tool"
)

// ErrDivisionByZero is returned by math.divide.
var ErrDivisionByZero = errors.New("division by zero")

type binaryArgs struct {
	A float64 `json:"a" jsonschema:"left operand"`
	B float64 `json:"b" jsonschema:"right operand"`
}

type textArgs struct {
	Text string `json:"text" jsonschema:"input text"`
}

type replaceArgs struct {
	Text string `json:"text" jsonschema:"input text"`
	Old  string `json:"old" jsonschema:"substring to replace"`
	New  string `json:"new" jsonschema:"replacement"`
}

type splitArgs struct {
	Text      string `json:"text" jsonschema:"input text"`
	Separator string `json:"separator,omitempty" jsonschema:"separator, defaults to whitespace"`
}

type nowArgs struct {
	Format string `json:"format,omitempty" jsonschema:"Go time layout, defaults to RFC3339"`
}

type jsonGetArgs struct {
	JSON string `json:"json" jsonschema:"JSON document"`
	Path string `json:"path" jsonschema:"dot separated path, e.g. items.0.name"`
}

func typed[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) tool.Tool {
	t, err := tool.NewTypedTool(name, description, fn)
	if err != nil {
		// Argument types are fixed at compile time; inference cannot fail at runtime.
		panic(err)
	}

	return t
}

func binary(name, description string, op func(a, b float64) (float64, error)) tool.Tool {
	return typed(name, description, func(_ context.Context, in binaryArgs) (any, error) {
		return op(in.A, in.B)
	})
}

// Math returns math.add, math.subtract, math.multiply, math.divide and math.power.
func Math() []tool.Tool {
	return []tool.Tool{
		binary("math.add", "Add two numbers", func(a, b float64) (float64, error) { return a + b, nil }),
		binary("math.subtract", "Subtract b from a", func(a, b float64) (float64, error) { return a - b, nil }),
		binary("math.multiply", "Multiply two numbers", func(a, b float64) (float64, error) { return a * b, nil }),
		binary("math.divide", "Divide a by b", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, ErrDivisionByZero
			}

			return a / b, nil
		}),
		binary("math.power", "Raise a to the power of b", func(a, b float64) (float64, error) { return math.Pow(a, b), nil }),
	}
}

// Text returns text.upper, text.lower, text.length, text.replace and text.split.
func Text() []tool.Tool {
	return []tool.Tool{
		typed("text.upper", "Convert text to upper case", func(_ context.Context, in textArgs) (any, error) {
			return strings.ToUpper(in.Text), nil
		}),
		typed("text.lower", "Convert text to lower case", func(_ context.Context, in textArgs) (any, error) {
			return strings.ToLower(in.Text), nil
		}),
		typed("text.length", "Count the characters of a text", func(_ context.Context, in textArgs) (any, error) {
			return len([]rune(in.Text)), nil
		}),
		typed("text.replace", "Replace every occurrence of old with new", func(_ context.Context, in replaceArgs) (any, error) {
			return strings.ReplaceAll(in.Text, in.Old, in.New), nil
		}),
		typed("text.split", "Split text by a separator", func(_ context.Context, in splitArgs) (any, error) {
			if in.Separator == "" {
				return strings.Fields(in.Text), nil
			}

			return strings.Split(in.Text, in.Separator), nil
		}),
	}
}

// DateTime returns datetime.now. The clock is injectable for tests; nil uses time.Now.
func DateTime(clock func() time.Time) []tool.Tool {
	if clock == nil {
		clock = time.Now
	}

	return []tool.Tool{
		typed("datetime.now", "Current date and time", func(_ context.Context, in nowArgs) (any, error) {
			layout := in.Format
			if layout == "" {
				layout = time.RFC3339
			}

			return clock().Format(layout), nil
		}),
	}
}

// JSON returns json.parse and json.get.
func JSON() []tool.Tool {
	return []tool.Tool{
		typed("json.parse", "Validate and normalise a JSON document", func(_ context.Context, in textArgs) (any, error) {
			var v any
			if err := json.Unmarshal([]byte(in.Text), &v); err != nil {
				return nil, fmt.Errorf("invalid JSON: %w", err)
			}

			return v, nil
		}),
		typed("json.get", "Read a value from a JSON document by dot path", func(_ context.Context, in jsonGetArgs) (any, error) {
			var v any
			if err := json.Unmarshal([]byte(in.JSON), &v); err != nil {
				return nil, fmt.Errorf("invalid JSON: %w", err)
			}

			return lookupPath(v, in.Path)
		}),
	}
}

// All returns every builtin tool.
func All() []tool.Tool {
	var out []tool.Tool

	out = append(out, Math()...)
	out = append(out, Text()...)
	out = append(out, DateTime(nil)...)
	out = append(out, JSON()...)

	return out
}

func lookupPath(v any, path string) (any, error) {
	if path == "" {
		return v, nil
	}

	for _, key := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, fmt.Errorf("key %q not found", key)
			}

			v = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %q out of range", key)
			}

			v = node[i]
		default:
			return nil, fmt.Errorf("cannot descend into %T at %q", v, key)
		}
	}

	return v, nil
}
