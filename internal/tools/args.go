package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// validateArgs checks required arguments and declared types, returning a
// normalized copy. Model backends deliver JSON numbers as float64, so
// integral floats are accepted for "integer" properties and stored as int.
// Arguments without a declared property pass through untouched.
func validateArgs(tool *Tool, args map[string]any) (map[string]any, error) {
	for _, required := range tool.Schema.Required {
		v, ok := args[required]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: '%s' for tool %s", ErrMissingRequiredArg, required, tool.Name)
		}
	}

	out := make(map[string]any, len(args))
	for key, val := range args {
		prop, declared := tool.Schema.Properties[key]
		if !declared || val == nil {
			out[key] = val
			continue
		}
		conv, err := coerce(prop.Type, val)
		if err != nil {
			return nil, fmt.Errorf("%w: '%s' for tool %s: %v", ErrInvalidArgType, key, tool.Name, err)
		}
		out[key] = conv
	}

	for key, prop := range tool.Schema.Properties {
		if _, ok := out[key]; !ok && prop.Default != nil {
			out[key] = prop.Default
		}
	}
	return out, nil
}

func coerce(typ string, val any) (any, error) {
	switch typ {
	case "string":
		if s, ok := val.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected string, got %T", val)

	case "integer":
		switch n := val.(type) {
		case int:
			return n, nil
		case int32:
			return int(n), nil
		case int64:
			return int(n), nil
		case float64:
			if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
				return nil, fmt.Errorf("expected integer, got %v", n)
			}
			return int(n), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", n.String())
			}
			return int(i), nil
		case string:
			// Some models quote numbers.
			i, err := strconv.Atoi(n)
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", n)
			}
			return i, nil
		}
		return nil, fmt.Errorf("expected integer, got %T", val)

	case "number":
		switch n := val.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case json.Number:
			return n.Float64()
		}
		return nil, fmt.Errorf("expected number, got %T", val)

	case "boolean":
		switch b := val.(type) {
		case bool:
			return b, nil
		case string:
			v, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", b)
			}
			return v, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", val)

	case "array":
		switch a := val.(type) {
		case []any:
			return a, nil
		case []string:
			out := make([]any, len(a))
			for i, s := range a {
				out[i] = s
			}
			return out, nil
		}
		return nil, fmt.Errorf("expected array, got %T", val)

	case "object":
		if m, ok := val.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("expected object, got %T", val)
	}
	return val, nil
}
