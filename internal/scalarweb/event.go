package scalarweb

import (
	"encoding/json"
	"fmt"
)

// Notification methods pushed by devices over the websocket
const (
	NotifyVolumeInformation         = "notifyVolumeInformation"
	NotifyWirelessSurroundInfo      = "notifyWirelessSurroundInfo"
	NotifyPlayingContentInfo        = "notifyPlayingContentInfo"
	NotifyExternalTerminalStatus    = "notifyExternalTerminalStatus"
	NotifyAvailablePlaybackFunction = "notifyAvailablePlaybackFunction"
	NotifyPowerStatus               = "notifyPowerStatus"
)

// Event is an unsolicited notification. Unlike a Result it has no id.
type Event struct {
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	Version string            `json:"version"`
}

// Decode unmarshals the event's single parameter into v
func (e *Event) Decode(v any) error {
	return decodeSingle(e.Params, v)
}

// DecodeParams decodes every parameter of the event as T
func DecodeParams[T any](e *Event) ([]T, error) {
	return decodeAll[T](e.Params)
}

func (e *Event) String() string {
	b, _ := json.Marshal(e.Params)
	return fmt.Sprintf("Event [method=%s, params=%s, version=%s]", e.Method, b, e.Version)
}
