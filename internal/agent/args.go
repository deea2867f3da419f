package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
)

// ParseArguments decodes and coerces a tool-call argument string against the
// tool's parameter schema. Failures are parse failures: the invoker turns
// them into error tool results rather than failing the loop.
func ParseArguments(tool *Tool, raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = "{}"
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments must be a JSON object, got %s", jsonTypeName(decoded))
	}

	if tool.Strict && tool.Parameters != nil {
		if err := validateStrict(tool.Parameters, decoded); err != nil {
			return nil, fmt.Errorf("schema validation: %w", err)
		}
	}

	schema := tool.Parameters
	if schema == nil || len(schema.Properties) == 0 {
		return obj, nil
	}

	required := map[string]bool{}
	for _, name := range schema.Required {
		required[name] = true
	}

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for name, prop := range schema.Properties {
		value, present := obj[name]
		if !present {
			if required[name] && !isNullable(prop) {
				return nil, fmt.Errorf("missing required parameter %q", name)
			}
			out[name] = nil
			continue
		}
		coerced, err := coerceValue(value, prop)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		out[name] = coerced
	}
	return out, nil
}

// FormatArgParseError renders the error text placed in the error tool
// result. Raw arguments are truncated to 500 characters.
func FormatArgParseError(err error, raw string) string {
	if len(raw) > 500 {
		raw = raw[:500]
	}
	return fmt.Sprintf("Failed to parse tool arguments: %v\nRaw arguments: %s", err, raw)
}

// isNullable reports whether the schema accepts null (or a missing key).
func isNullable(s *Schema) bool {
	if s == nil {
		return true
	}
	if s.Nullable || s.Type == "null" {
		return true
	}
	for _, variant := range s.AnyOf {
		if isNullable(variant) {
			return true
		}
	}
	return false
}

// coerceValue converts a decoded JSON value into the schema's declared type:
// scalars convert directly, unions take the first matching variant trying
// non-null variants before null, arrays coerce elementwise, anything else
// passes through unchanged.
func coerceValue(value any, s *Schema) (any, error) {
	if s == nil {
		return value, nil
	}

	if len(s.AnyOf) > 0 {
		for _, variant := range s.AnyOf {
			if variant.IsNull() {
				continue
			}
			if coerced, err := coerceValue(value, variant); err == nil {
				return coerced, nil
			}
		}
		for _, variant := range s.AnyOf {
			if variant.IsNull() && value == nil {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("no union variant accepts %s", jsonTypeName(value))
	}

	if value == nil {
		if isNullable(s) {
			return nil, nil
		}
		return nil, fmt.Errorf("null is not allowed")
	}

	switch s.Type {
	case "string":
		switch v := value.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
		return nil, fmt.Errorf("cannot convert %s to string", jsonTypeName(value))
	case "integer":
		switch v := value.(type) {
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("number %v is not an integer", v)
			}
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to integer", v)
			}
			return n, nil
		}
		return nil, fmt.Errorf("cannot convert %s to integer", jsonTypeName(value))
	case "number":
		switch v := value.(type) {
		case float64:
			return v, nil
		case string:
			n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to number", v)
			}
			return n, nil
		}
		return nil, fmt.Errorf("cannot convert %s to number", jsonTypeName(value))
	case "boolean":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
			return nil, fmt.Errorf("cannot convert %q to boolean", v)
		}
		return nil, fmt.Errorf("cannot convert %s to boolean", jsonTypeName(value))
	case "null":
		return nil, fmt.Errorf("expected null, got %s", jsonTypeName(value))
	case "array":
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("cannot convert %s to array", jsonTypeName(value))
		}
		if s.Items == nil {
			return items, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			coerced, err := coerceValue(item, s.Items)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = coerced
		}
		return out, nil
	}

	// Objects and untyped schemas pass through unchanged.
	return value, nil
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// validateStrict runs full JSON-schema validation on the decoded arguments.
func validateStrict(schema *Schema, decoded any) error {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	compiler := santhosh.NewCompiler()
	if err := compiler.AddResource("tool-params.json", strings.NewReader(string(schemaJSON))); err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	compiled, err := compiler.Compile("tool-params.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return compiled.Validate(decoded)
}
