package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Device represents a generic device that can process commands
type Device interface {
	// Process handles a JSON-encoded action and executes the corresponding operation
	Process(ctx context.Context, actionJSON []byte) (*ActionResponse, error)

	// GetDeviceInfo returns basic information about the device
	GetDeviceInfo() DeviceInfo

	// Close releases connections held to the device
	Close() error
}

// EventSource is implemented by devices that record pushed events
type EventSource interface {
	RecentEvents() []Event
}

// Starter is implemented by devices with background work, such as listening
// for notifications. Start must not block.
type Starter interface {
	Start(ctx context.Context) error
}

// DeviceInfo contains basic information about a device
type DeviceInfo struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Model        string   `json:"model"`
	Address      string   `json:"address"`
	Capabilities []string `json:"capabilities"`
}

// Event is a notification received from a device
type Event struct {
	Time    time.Time       `json:"time"`
	Source  string          `json:"source"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ActionType represents the type of action to perform
type ActionType string

const (
	ActionTypeRemote  ActionType = "remote"
	ActionTypeControl ActionType = "control"
	ActionTypeCall    ActionType = "call"
	ActionTypeApp     ActionType = "app"
)

// ActionRequest represents a JSON action request
type ActionRequest struct {
	Type       ActionType             `json:"type"`
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ActionResponse represents the response from processing an action
type ActionResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Failed builds an unsuccessful response
func Failed(format string, args ...interface{}) *ActionResponse {
	return &ActionResponse{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Succeeded builds a successful response
func Succeeded(data interface{}) *ActionResponse {
	return &ActionResponse{Success: true, Data: data}
}

// RemoteAction represents available remote control actions
type RemoteAction string

const (
	RemoteActionPower       RemoteAction = "power"
	RemoteActionPowerOn     RemoteAction = "power_on"
	RemoteActionPowerOff    RemoteAction = "power_off"
	RemoteActionVolumeUp    RemoteAction = "volume_up"
	RemoteActionVolumeDown  RemoteAction = "volume_down"
	RemoteActionMute        RemoteAction = "mute"
	RemoteActionChannelUp   RemoteAction = "channel_up"
	RemoteActionChannelDown RemoteAction = "channel_down"
	RemoteActionUp          RemoteAction = "up"
	RemoteActionDown        RemoteAction = "down"
	RemoteActionLeft        RemoteAction = "left"
	RemoteActionRight       RemoteAction = "right"
	RemoteActionConfirm     RemoteAction = "confirm"
	RemoteActionHome        RemoteAction = "home"
	RemoteActionMenu        RemoteAction = "menu"
	RemoteActionBack        RemoteAction = "back"
	RemoteActionInput       RemoteAction = "input"
	RemoteActionHDMI1       RemoteAction = "hdmi1"
	RemoteActionHDMI2       RemoteAction = "hdmi2"
	RemoteActionHDMI3       RemoteAction = "hdmi3"
	RemoteActionHDMI4       RemoteAction = "hdmi4"
)

// ControlAction represents available control API actions
type ControlAction string

const (
	ControlActionPowerStatus    ControlAction = "power_status"
	ControlActionSetPower       ControlAction = "set_power"
	ControlActionSystemInfo     ControlAction = "system_info"
	ControlActionVolumeInfo     ControlAction = "volume_info"
	ControlActionPlayingContent ControlAction = "playing_content"
	ControlActionAppList        ControlAction = "app_list"
	ControlActionContentList    ControlAction = "content_list"
	ControlActionSetVolume      ControlAction = "set_volume"
	ControlActionSetMute        ControlAction = "set_mute"
	ControlActionInput          ControlAction = "input"
	ControlActionSetInput       ControlAction = "set_input"
	ControlActionRegister       ControlAction = "register"
	ControlActionSetPictureMute ControlAction = "set_picture_mute"
	ControlActionSetScene       ControlAction = "set_scene"
	ControlActionMACAddress     ControlAction = "mac_address"
)

// AppAction represents DIAL application actions
type AppAction string

const (
	AppActionList  AppAction = "list"
	AppActionState AppAction = "state"
	AppActionStart AppAction = "start"
	AppActionStop  AppAction = "stop"
)

// ParseActionRequest parses JSON input into ActionRequest
func ParseActionRequest(actionJSON []byte) (*ActionRequest, error) {
	var request ActionRequest
	if err := json.Unmarshal(actionJSON, &request); err != nil {
		return nil, fmt.Errorf("failed to parse action request: %w", err)
	}

	// Validate required fields
	if request.Type == "" {
		return nil, fmt.Errorf("action type is required")
	}

	if request.Action == "" {
		return nil, fmt.Errorf("action is required")
	}

	return &request, nil
}

// Param returns parameter name as a string. Numbers and booleans are
// formatted.
func (r *ActionRequest) Param(name string) (string, bool) {
	v, ok := r.Parameters[name]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

// Int returns parameter name as an int. Strings holding numbers are accepted.
func (r *ActionRequest) Int(name string) (int, error) {
	v, ok := r.Parameters[name]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s parameter is required for %s action", name, r.Action)
	}
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, fmt.Errorf("invalid %s parameter: %w", name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("invalid %s parameter type", name)
	}
}

// Bool returns parameter name as a bool. "true"/"false" and "on"/"off"
// strings are accepted.
func (r *ActionRequest) Bool(name string) (bool, error) {
	v, ok := r.Parameters[name]
	if !ok || v == nil {
		return false, fmt.Errorf("%s parameter is required for %s action", name, r.Action)
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch t {
		case "true", "on", "1":
			return true, nil
		case "false", "off", "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("invalid %s parameter type", name)
}
