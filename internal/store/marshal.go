package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/gpuflat/internal/ir"
)

// marshalDetails converts remark details to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalDetails(details map[string]string) (string, error) {
	obj := make(map[string]any, len(details))
	for k, v := range details {
		obj[k] = v
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal details: %w", err)
	}
	return string(data), nil
}

// unmarshalDetails parses JSON TEXT to remark details.
// Returns nil for an empty object so round trips preserve omitempty.
func unmarshalDetails(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var details map[string]string
	if err := json.Unmarshal([]byte(data), &details); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}
	return details, nil
}
