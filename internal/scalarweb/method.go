package scalarweb

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Method describes one method as reported by getMethodTypes
type Method struct {
	Name    string   `json:"name"`
	Params  []string `json:"params"`
	Results []string `json:"results"`
	Version string   `json:"version"`
}

// UnmarshalJSON accepts the positional form the device sends:
// ["name", [params], [results], "version"]
func (m *Method) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		type plain Method
		var p plain
		if err2 := json.Unmarshal(data, &p); err2 != nil {
			return fmt.Errorf("failed to decode method: %w", err)
		}
		*m = Method(p)
		return nil
	}
	if len(parts) != 4 {
		return fmt.Errorf("method type needs 4 elements, got %d", len(parts))
	}

	if err := json.Unmarshal(parts[0], &m.Name); err != nil {
		return fmt.Errorf("failed to decode method name: %w", err)
	}
	if err := json.Unmarshal(parts[1], &m.Params); err != nil {
		return fmt.Errorf("failed to decode params of %s: %w", m.Name, err)
	}
	if err := json.Unmarshal(parts[2], &m.Results); err != nil {
		return fmt.Errorf("failed to decode results of %s: %w", m.Name, err)
	}
	if err := json.Unmarshal(parts[3], &m.Version); err != nil {
		return fmt.Errorf("failed to decode version of %s: %w", m.Name, err)
	}
	return nil
}

func (m Method) String() string {
	return fmt.Sprintf("%s(%s) v%s -> %s", m.Name, strings.Join(m.Params, ", "), m.Version, strings.Join(m.Results, ", "))
}

// DecodeMethods reads a getMethodTypes reply. Each result element is one
// positional method description.
func DecodeMethods(r *Result) ([]Method, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	methods := make([]Method, 0, len(r.Results))
	for _, raw := range r.Results {
		var m Method
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, nil
}

// Notification names a notification and its version
type Notification struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Notifications is the switchNotifications parameter and reply
type Notifications struct {
	Enabled  []Notification `json:"enabled"`
	Disabled []Notification `json:"disabled"`
}

// ServicesParam is the getSupportedApiInfo parameter
type ServicesParam struct {
	Services []string `json:"services"`
}

// DecodeServiceProtocols reads a getServiceProtocols reply, a list of
// ["service", ["protocol", ...]] pairs
func DecodeServiceProtocols(r *Result) ([]ServiceProtocol, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	var out []ServiceProtocol
	for _, raw := range r.Results {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil {
			return nil, fmt.Errorf("failed to decode service protocol: %w", err)
		}
		if len(pair) == 0 {
			continue
		}
		var name string
		if err := json.Unmarshal(pair[0], &name); err != nil {
			return nil, fmt.Errorf("failed to decode service name: %w", err)
		}
		var protocols []string
		if len(pair) > 1 {
			if err := json.Unmarshal(pair[1], &protocols); err != nil {
				return nil, fmt.Errorf("failed to decode protocols of %s: %w", name, err)
			}
		}
		out = append(out, NewServiceProtocol(name, protocols...))
	}
	return out, nil
}
