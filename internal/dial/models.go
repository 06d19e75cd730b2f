package dial

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// App is one launchable application from the apps list
type App struct {
	ID      string   `xml:"id" json:"id"`
	Name    string   `xml:"name" json:"name"`
	Actions []string `xml:"supportAction>action" json:"actions,omitempty"`
	IconURL string   `xml:"icon_url" json:"icon_url,omitempty"`
}

// Supports reports whether the app advertises action
func (a App) Supports(action string) bool {
	for _, s := range a.Actions {
		if strings.EqualFold(s, action) {
			return true
		}
	}
	return false
}

// DeviceInfo is the X_DIALEX_DeviceInfo block of a device description
type DeviceInfo struct {
	AppsListURL string `xml:"X_DIALEX_AppsListURL" json:"apps_list_url"`
	DeviceID    string `xml:"X_DIALEX_DeviceID" json:"device_id"`
	DeviceType  string `xml:"X_DIALEX_DeviceType" json:"device_type"`
	Apps        []App  `xml:"-" json:"apps"`
}

// AppState is the answer to GET <application-url>/<app>
type AppState struct {
	Name  string `xml:"name" json:"name"`
	State string `xml:"state" json:"state"`
}

// Running reports whether the device says the app is running
func (s AppState) Running() bool {
	return strings.EqualFold(s.State, "running")
}

type service struct {
	Apps []App `xml:"app"`
}

var errEmptyDocument = errors.New("empty document")

// parseDeviceInfos collects every X_DIALEX_DeviceInfo element, wherever it
// sits in the description
func parseDeviceInfos(data []byte) ([]DeviceInfo, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyDocument
	}

	var infos []DeviceInfo
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return infos, nil
		}
		if err != nil {
			return nil, fmt.Errorf("invalid device description: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "X_DIALEX_DeviceInfo" {
			continue
		}

		var info DeviceInfo
		if err := dec.DecodeElement(&info, &start); err != nil {
			return nil, fmt.Errorf("invalid device info: %w", err)
		}
		infos = append(infos, info)
	}
}

func parseApps(data []byte) ([]App, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyDocument
	}
	var svc service
	if err := xml.Unmarshal(data, &svc); err != nil {
		return nil, fmt.Errorf("invalid apps list: %w", err)
	}
	return svc.Apps, nil
}

func parseAppState(data []byte) (*AppState, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyDocument
	}
	var state AppState
	if err := xml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("invalid app state: %w", err)
	}
	return &state, nil
}
