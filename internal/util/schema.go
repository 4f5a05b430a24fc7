package util

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}

	return fmt.Sprintf("field '%s': %s", e.Field, e.Message)
}

// SchemaFor infers a JSON schema map for T and returns it together with its
// compiled validator.
func SchemaFor[T any]() (map[string]any, *jsonschema.Resolved, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, nil, err
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, err
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, nil, err
	}

	resolved, err := CompileSchema(schemaMap)
	if err != nil {
		return nil, nil, err
	}

	return schemaMap, resolved, nil
}

// CompileSchema compiles a raw JSON schema map into a validator. A nil or empty
// schema compiles to nil, meaning "accept any arguments".
func CompileSchema(schemaMap map[string]any) (*jsonschema.Resolved, error) {
	if len(schemaMap) == 0 {
		return nil, nil
	}

	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, err
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	return s.Resolve(nil)
}

// ValidateArguments validates args against a compiled schema.
func ValidateArguments(resolved *jsonschema.Resolved, args map[string]any) error {
	return ValidateDocument(resolved, args)
}

// ValidateDocument validates a decoded JSON value against a compiled schema.
func ValidateDocument(resolved *jsonschema.Resolved, v any) error {
	if resolved == nil {
		return nil
	}

	if err := resolved.Validate(v); err != nil {
		return &ValidationError{Message: err.Error()}
	}

	return nil
}

// CoerceArguments returns a copy of args in which values are converted to the
// primitive type declared for them in schema's top-level properties, when the
// conversion is lossless ("2" -> 2 for number, "true" -> true for boolean, ...).
// Values that cannot be converted are kept as-is so validation can report them.
// Numbers are normalised to float64, matching encoding/json.
func CoerceArguments(args map[string]any, schema map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	properties, _ := schema["properties"].(map[string]any)

	for name, value := range args {
		prop, _ := properties[name].(map[string]any)
		out[name] = coerce(value, schemaType(prop))
	}

	return out
}

// MissingRequired lists required parameters absent from args, sorted.
func MissingRequired(args map[string]any, schema map[string]any) []string {
	var missing []string

	for _, name := range RequiredFields(schema) {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}

	sort.Strings(missing)

	return missing
}

// RequiredFields returns the "required" list of schema, accepting both []string
// and the []any shape produced by JSON decoding.
func RequiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))

		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}

func schemaType(prop map[string]any) string {
	switch t := prop["type"].(type) {
	case string:
		return t
	case []any:
		// ["number", "null"] style unions: first non-null type wins.
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				return s
			}
		}
	case []string:
		for _, s := range t {
			if s != "null" {
				return s
			}
		}
	}

	return ""
}

func coerce(value any, typ string) any {
	switch typ {
	case "number":
		if f, ok := toFloat(value); ok {
			return f
		}
	case "integer":
		if f, ok := toFloat(value); ok && f == math.Trunc(f) {
			return f
		}
	case "boolean":
		if s, ok := value.(string); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				return b
			}
		}
	case "string":
		switch v := value.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case bool:
			return strconv.FormatBool(v)
		}
	case "array", "object":
		if s, ok := value.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded
			}
		}
	default:
		if f, ok := toFloat(value); ok {
			if _, isString := value.(string); !isString {
				return f
			}
		}
	}

	return value
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
