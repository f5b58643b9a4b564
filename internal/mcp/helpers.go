package mcpserver

import (
	"encoding/json"
	"fmt"
)

// parseJSON parses a JSON string into the target type.
func parseJSON(data string, target any) error {
	return json.Unmarshal([]byte(data), target)
}

// jsonArg reads an argument that clients send either as a JSON string or
// as an already-decoded value, and decodes it into target.
func jsonArg(args map[string]any, key string, target any) (bool, error) {
	switch v := args[key].(type) {
	case nil:
		return false, nil
	case string:
		if v == "" {
			return false, nil
		}
		if err := parseJSON(v, target); err != nil {
			return true, fmt.Errorf("parse %s: %w", key, err)
		}
		return true, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return true, fmt.Errorf("parse %s: %w", key, err)
		}
		if err := json.Unmarshal(b, target); err != nil {
			return true, fmt.Errorf("parse %s: %w", key, err)
		}
		return true, nil
	}
}
