package scalarweb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoPayload is returned when decoding a result or event that carries nothing
var ErrNoPayload = errors.New("no payload to decode")

// isBlank reports whether payload holds nothing but (nested) empty arrays
func isBlank(payload []json.RawMessage) bool {
	for _, elm := range payload {
		if !isBlankElement(elm) {
			return false
		}
	}
	return true
}

func isBlankElement(elm json.RawMessage) bool {
	trimmed := bytes.TrimSpace(elm)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false
	}
	var nested []json.RawMessage
	if err := json.Unmarshal(trimmed, &nested); err != nil {
		return false
	}
	return isBlank(nested)
}

// decodeSingle unmarshals a payload holding a single value into v. Devices
// commonly wrap that value in a one element array, which is unwrapped.
func decodeSingle(payload []json.RawMessage, v any) error {
	if isBlank(payload) {
		return ErrNoPayload
	}
	if len(payload) != 1 {
		return fmt.Errorf("expected a single value, got %d", len(payload))
	}

	elm := bytes.TrimSpace(payload[0])
	if len(elm) > 0 && elm[0] == '[' {
		var nested []json.RawMessage
		if err := json.Unmarshal(elm, &nested); err != nil {
			return fmt.Errorf("failed to decode payload: %w", err)
		}
		if len(nested) == 1 {
			elm = nested[0]
		}
	}

	if err := json.Unmarshal(elm, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// decodeAll flattens the payload one level and decodes every element as T
func decodeAll[T any](payload []json.RawMessage) ([]T, error) {
	var out []T
	for _, elm := range payload {
		trimmed := bytes.TrimSpace(elm)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var nested []json.RawMessage
			if err := json.Unmarshal(trimmed, &nested); err != nil {
				return nil, fmt.Errorf("failed to decode payload: %w", err)
			}
			for _, n := range nested {
				var v T
				if err := json.Unmarshal(n, &v); err != nil {
					return nil, fmt.Errorf("failed to decode payload element: %w", err)
				}
				out = append(out, v)
			}
			continue
		}
		var v T
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, fmt.Errorf("failed to decode payload element: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}
