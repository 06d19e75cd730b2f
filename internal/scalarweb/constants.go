package scalarweb

import "sonyhub/internal/sonynet"

// Well known service names
const (
	ServiceAccessControl = "accessControl"
	ServiceAppControl    = "appControl"
	ServiceAudio         = "audio"
	ServiceAVContent     = "avContent"
	ServiceBrowser       = "browser"
	ServiceCEC           = "cec"
	ServiceContentShare  = "contentshare"
	ServiceEncryption    = "encryption"
	ServiceGuide         = "guide"
	ServiceSystem        = "system"
	ServiceVideoScreen   = "videoScreen"
)

var serviceLabels = map[string]string{
	ServiceAccessControl: "Access Control",
	ServiceAppControl:    "Application Control",
	ServiceAudio:         "Audio",
	ServiceAVContent:     "A/V Content",
	ServiceBrowser:       "Browser",
	ServiceCEC:           "CEC",
	ServiceContentShare:  "Content Share",
	ServiceEncryption:    "Encryption",
	ServiceGuide:         "Guide",
	ServiceSystem:        "System",
	ServiceVideoScreen:   "Video Screen",
}

// ServiceLabel returns a human readable label for a service name
func ServiceLabel(service string) string {
	if label, ok := serviceLabels[service]; ok {
		return label
	}
	return service
}

// Services returns every well known service name
func Services() []string {
	return []string{
		ServiceAccessControl, ServiceAppControl, ServiceAudio, ServiceAVContent,
		ServiceBrowser, ServiceCEC, ServiceContentShare, ServiceEncryption,
		ServiceGuide, ServiceSystem, ServiceVideoScreen,
	}
}

// Method names used outside of device specific payload handling
const (
	MethodActRegister          = "actRegister"
	MethodGetVersions          = "getVersions"
	MethodGetMethodTypes       = "getMethodTypes"
	MethodGetSupportedAPIInfo  = "getSupportedApiInfo"
	MethodGetServiceProtocols  = "getServiceProtocols"
	MethodSwitchNotifications  = "switchNotifications"
	MethodGetPowerStatus       = "getPowerStatus"
	MethodSetPowerStatus       = "setPowerStatus"
	MethodGetSystemInformation = "getSystemInformation"
	MethodGetVolumeInformation = "getVolumeInformation"
	MethodSetAudioVolume       = "setAudioVolume"
	MethodSetAudioMute         = "setAudioMute"
	MethodGetPlayingContent    = "getPlayingContentInfo"
	MethodGetContentList       = "getContentList"
	MethodGetApplicationList   = "getApplicationList"
	MethodSetPlayContent       = "setPlayContent"
	MethodSetActiveApp         = "setActiveApp"
	MethodTerminateApps        = "terminateApps"
)

// Version1_0 is the baseline API version every service understands
const Version1_0 = "1.0"

// ActRegisterID is the first actRegister parameter identifying this client
type ActRegisterID struct {
	ClientID string `json:"clientid"`
	Nickname string `json:"nickname"`
	Level    string `json:"level"`
}

// ActRegisterOption is an element of the second actRegister parameter
type ActRegisterOption struct {
	Function string `json:"function"`
	Value    string `json:"value"`
}

// ActRegisterParams returns the parameters of an actRegister call
func ActRegisterParams() []any {
	return []any{
		ActRegisterID{
			ClientID: sonynet.DeviceID,
			Nickname: sonynet.DeviceName(),
			Level:    "private",
		},
		[]ActRegisterOption{{Function: "WOL", Value: "yes"}},
	}
}

// NewActRegister builds an actRegister request
func NewActRegister(id int, version string) *Request {
	if version == "" {
		version = Version1_0
	}
	return NewRequest(id, MethodActRegister, version, ActRegisterParams()...)
}
