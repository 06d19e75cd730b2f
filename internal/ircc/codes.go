package ircc

import (
	"sort"
	"strings"
)

// Code is a base64 encoded infrared command understood by X_SendIRCC
type Code string

// Remote control codes shared by most Bravia models
const (
	// Power
	PowerButton Code = "AAAAAQAAAAEAAAAVAw=="
	PowerOn     Code = "AAAAAQAAAAEAAAAuAw=="
	PowerOff    Code = "AAAAAQAAAAEAAAAvAw=="

	// Volume
	VolumeUp   Code = "AAAAAQAAAAEAAAASAw=="
	VolumeDown Code = "AAAAAQAAAAEAAAATAw=="
	Mute       Code = "AAAAAQAAAAEAAAAUAw=="

	// Channel
	ChannelUp   Code = "AAAAAQAAAAEAAAAQAw=="
	ChannelDown Code = "AAAAAQAAAAEAAAARAw=="

	// Navigation
	Up      Code = "AAAAAQAAAAEAAAB0Aw=="
	Down    Code = "AAAAAQAAAAEAAAB1Aw=="
	Left    Code = "AAAAAQAAAAEAAAA0Aw=="
	Right   Code = "AAAAAQAAAAEAAAAzAw=="
	Confirm Code = "AAAAAQAAAAEAAABlAw=="

	// Menus
	Home    Code = "AAAAAQAAAAEAAABgAw=="
	Menu    Code = "AAAAAQAAAAEAAAAbAw=="
	Options Code = "AAAAAgAAAJcAAAA2Aw=="
	Back    Code = "AAAAAgAAAJcAAAAjAw=="

	// Inputs
	Input Code = "AAAAAQAAAAEAAAAlAw=="
	HDMI1 Code = "AAAAAgAAABoAAABaAw=="
	HDMI2 Code = "AAAAAgAAABoAAABbAw=="
	HDMI3 Code = "AAAAAgAAABoAAABcAw=="
	HDMI4 Code = "AAAAAgAAABoAAABdAw=="

	// Playback
	Play        Code = "AAAAAgAAAJcAAAAaAw=="
	Pause       Code = "AAAAAgAAAJcAAAAZAw=="
	Stop        Code = "AAAAAgAAAJcAAAAYAw=="
	Rewind      Code = "AAAAAgAAAJcAAAAbAw=="
	FastForward Code = "AAAAAgAAAJcAAAAcAw=="

	// Digits
	Num0 Code = "AAAAAQAAAAEAAAAJAw=="
	Num1 Code = "AAAAAQAAAAEAAAAAAw=="
	Num2 Code = "AAAAAQAAAAEAAAABAw=="
	Num3 Code = "AAAAAQAAAAEAAAACAw=="
	Num4 Code = "AAAAAQAAAAEAAAADAw=="
	Num5 Code = "AAAAAQAAAAEAAAAEAw=="
	Num6 Code = "AAAAAQAAAAEAAAAFAw=="
	Num7 Code = "AAAAAQAAAAEAAAAGAw=="
	Num8 Code = "AAAAAQAAAAEAAAAHAw=="
	Num9 Code = "AAAAAQAAAAEAAAAIAw=="
)

var codesByName = map[string]Code{
	"power":        PowerButton,
	"power_on":     PowerOn,
	"power_off":    PowerOff,
	"volume_up":    VolumeUp,
	"volume_down":  VolumeDown,
	"mute":         Mute,
	"channel_up":   ChannelUp,
	"channel_down": ChannelDown,
	"up":           Up,
	"down":         Down,
	"left":         Left,
	"right":        Right,
	"confirm":      Confirm,
	"home":         Home,
	"menu":         Menu,
	"options":      Options,
	"back":         Back,
	"input":        Input,
	"hdmi1":        HDMI1,
	"hdmi2":        HDMI2,
	"hdmi3":        HDMI3,
	"hdmi4":        HDMI4,
	"play":         Play,
	"pause":        Pause,
	"stop":         Stop,
	"rewind":       Rewind,
	"fast_forward": FastForward,
	"num0":         Num0,
	"num1":         Num1,
	"num2":         Num2,
	"num3":         Num3,
	"num4":         Num4,
	"num5":         Num5,
	"num6":         Num6,
	"num7":         Num7,
	"num8":         Num8,
	"num9":         Num9,
}

// Lookup finds a code by its friendly name, ignoring case
func Lookup(name string) (Code, bool) {
	code, ok := codesByName[strings.ToLower(strings.TrimSpace(name))]
	return code, ok
}

// Names lists every friendly name in sorted order
func Names() []string {
	names := make([]string, 0, len(codesByName))
	for name := range codesByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
