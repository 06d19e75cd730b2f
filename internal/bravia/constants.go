package bravia

import (
	"fmt"
	"sort"

	"sonyhub/internal/device"
	"sonyhub/internal/scalarweb"
)

// Capabilities advertised by a Bravia device
var capabilities = []string{
	"remote_control",
	"system_control",
	"audio_control",
	"content_control",
	"app_control",
	"events",
}

// controlActionInfo maps a control action onto a ScalarWeb call
type controlActionInfo struct {
	service string
	method  string
	params  func(r *device.ActionRequest) ([]any, error)
}

var controlActionMap = map[device.ControlAction]controlActionInfo{
	device.ControlActionPowerStatus: {
		service: scalarweb.ServiceSystem,
		method:  scalarweb.MethodGetPowerStatus,
	},
	device.ControlActionSetPower: {
		service: scalarweb.ServiceSystem,
		method:  scalarweb.MethodSetPowerStatus,
		params:  statusParams,
	},
	device.ControlActionSystemInfo: {
		service: scalarweb.ServiceSystem,
		method:  scalarweb.MethodGetSystemInformation,
	},
	device.ControlActionVolumeInfo: {
		service: scalarweb.ServiceAudio,
		method:  scalarweb.MethodGetVolumeInformation,
	},
	device.ControlActionPlayingContent: {
		service: scalarweb.ServiceAVContent,
		method:  scalarweb.MethodGetPlayingContent,
	},
	device.ControlActionAppList: {
		service: scalarweb.ServiceAppControl,
		method:  scalarweb.MethodGetApplicationList,
	},
	device.ControlActionContentList: {
		service: scalarweb.ServiceAVContent,
		method:  scalarweb.MethodGetContentList,
		params:  passthroughParams,
	},
	device.ControlActionSetVolume: {
		service: scalarweb.ServiceAudio,
		method:  scalarweb.MethodSetAudioVolume,
		params:  volumeParams,
	},
	device.ControlActionSetMute: {
		service: scalarweb.ServiceAudio,
		method:  scalarweb.MethodSetAudioMute,
		params:  statusParams,
	},
	device.ControlActionInput: {
		service: scalarweb.ServiceAVContent,
		method:  scalarweb.MethodGetPlayingContent,
	},
	device.ControlActionSetInput: {
		service: scalarweb.ServiceAVContent,
		method:  scalarweb.MethodSetPlayContent,
		params:  inputParams,
	},
}

func volumeParams(r *device.ActionRequest) ([]any, error) {
	volume, err := r.Int("volume")
	if err != nil {
		return nil, err
	}
	target, _ := r.Param("target")
	if target == "" {
		target = "speaker"
	}
	return []any{map[string]string{
		"target": target,
		"volume": fmt.Sprint(volume),
	}}, nil
}

func statusParams(r *device.ActionRequest) ([]any, error) {
	status, err := r.Bool("status")
	if err != nil {
		return nil, err
	}
	return []any{map[string]bool{"status": status}}, nil
}

// inputParams accepts either a full uri or an hdmi port number
func inputParams(r *device.ActionRequest) ([]any, error) {
	if uri, ok := r.Param("uri"); ok {
		return []any{map[string]string{"uri": uri}}, nil
	}
	port, err := r.Int("hdmi")
	if err != nil {
		return nil, fmt.Errorf("uri or hdmi parameter is required for %s action", r.Action)
	}
	return []any{map[string]string{"uri": fmt.Sprintf("extInput:hdmi?port=%d", port)}}, nil
}

// passthroughParams sends the request parameters as the single call parameter
func passthroughParams(r *device.ActionRequest) ([]any, error) {
	if len(r.Parameters) == 0 {
		return nil, nil
	}
	return []any{r.Parameters}, nil
}

// ControlActions lists the control actions a BraviaRemote understands
func ControlActions() []string {
	names := []string{string(device.ControlActionRegister)}
	for action := range controlActionMap {
		names = append(names, string(action))
	}
	sort.Strings(names)
	return names
}
