package capability

import "fmt"

// validateArgs checks args against a JSON Schema object: required fields
// must be present and typed fields must match. Unknown fields pass through
// untouched. A nil schema accepts anything.
func validateArgs(args map[string]any, schema map[string]any) error {
	if schema == nil {
		return nil
	}

	if required, ok := schema["required"].([]any); ok {
		for _, f := range required {
			field, ok := f.(string)
			if !ok {
				continue
			}
			if _, present := args[field]; !present {
				return fmt.Errorf("missing required field %q", field)
			}
		}
	}

	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	for field, raw := range properties {
		value, present := args[field]
		if !present || value == nil {
			continue
		}
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		want, ok := prop["type"].(string)
		if !ok {
			continue
		}
		if !matchesType(value, want) {
			return fmt.Errorf("field %q: expected %s, got %T", field, want, value)
		}
	}
	return nil
}

// matchesType checks a decoded JSON value against a schema type name.
// Integers arrive as float64 after json.Unmarshal, so "integer" accepts
// whole-valued floats.
func matchesType(value any, want string) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	}
	return true
}
