// Package simpleip speaks the Sony Bravia Simple IP control protocol: fixed
// 24 byte lines of the form *S<type><command><parameter> over TCP.
package simpleip

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPort is the Simple IP TCP port
const DefaultPort = 20060

// Type is the message type character
type Type byte

const (
	TypeControl Type = 'C'
	TypeQuery   Type = 'E'
	TypeAnswer  Type = 'A'
	TypeNotify  Type = 'N'
)

// Command is a four letter Simple IP command
type Command string

const (
	CmdIRCC                   Command = "IRCC"
	CmdPower                  Command = "POWR"
	CmdTogglePower            Command = "TPOW"
	CmdVolume                 Command = "VOLU"
	CmdAudioMute              Command = "AMUT"
	CmdInput                  Command = "INPT"
	CmdPictureMute            Command = "PMUT"
	CmdTogglePictureMute      Command = "TPMU"
	CmdBroadcastAddress       Command = "BADR"
	CmdMACAddress             Command = "MADR"
	CmdScene                  Command = "SCEN"
	CmdChannel                Command = "CHNN"
	CmdTripletChannel         Command = "TCHN"
	CmdInputSource            Command = "ISRC"
	CmdPictureInPicture       Command = "PIPI"
	CmdTogglePictureInPicture Command = "TPIP"
	CmdTogglePIPPosition      Command = "TPPP"
)

const (
	// ParamSize is the fixed width of the parameter field
	ParamSize = 16

	NoParam          = "################"
	ParamSuccess     = "0000000000000000"
	ParamError       = "FFFFFFFFFFFFFFFF"
	ParamNoSuchThing = "NNNNNNNNNNNNNNNN"
)

var (
	// ErrCommandFailed is the device answering with all F's
	ErrCommandFailed = errors.New("simple ip command failed")

	// ErrNoSuchThing is the device answering with all N's
	ErrNoSuchThing = errors.New("simple ip target does not exist")

	// ErrNoAnswer means the device closed or timed out before answering
	ErrNoAnswer = errors.New("no answer from device")
)

var messagePattern = regexp.MustCompile(`^\*S([AN])(\w{4})(.{16})$`)

// Message is a parsed answer or notification
type Message struct {
	Type    Type
	Command Command
	Param   string
}

// Encode builds the line for a command without the trailing newline
func Encode(t Type, cmd Command, param string) (string, error) {
	if len(cmd) != 4 {
		return "", fmt.Errorf("command must be 4 characters: %q", cmd)
	}
	if len(param) != ParamSize {
		return "", fmt.Errorf("parameter must be exactly %d characters: %q", ParamSize, param)
	}
	return "*S" + string(t) + string(cmd) + param, nil
}

// Parse decodes an answer or notification line
func Parse(line string) (Message, error) {
	m := messagePattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Message{}, fmt.Errorf("unparsable simple ip message %q", line)
	}
	return Message{Type: Type(m[1][0]), Command: Command(m[2]), Param: m[3]}, nil
}

// Err maps the sentinel parameters to errors
func (m Message) Err() error {
	switch m.Param {
	case ParamError:
		return ErrCommandFailed
	case ParamNoSuchThing:
		return ErrNoSuchThing
	}
	return nil
}

// Int reads the parameter as a zero padded number
func (m Message) Int() (int, error) {
	if err := m.Err(); err != nil {
		return 0, err
	}
	n, err := atoiPadded(m.Param)
	if err != nil {
		return 0, fmt.Errorf("parameter %q of %s is not a number: %w", m.Param, m.Command, err)
	}
	return n, nil
}

// Bool reads the parameter as a 0/1 flag
func (m Message) Bool() (bool, error) {
	n, err := m.Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Text reads the parameter with the # padding removed
func (m Message) Text() string {
	return strings.TrimRight(m.Param, "#")
}

func (m Message) String() string {
	return fmt.Sprintf("*S%c%s%s", m.Type, m.Command, m.Param)
}

// atoiPadded parses a zero padded decimal, all zeros being 0
func atoiPadded(s string) (int, error) {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return 0, nil
	}
	return strconv.Atoi(trimmed)
}

func padLeft(s string, width int, pad byte) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(string(pad), width-len(s)) + s
}

func padRight(s string, width int, pad byte) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(string(pad), width-len(s))
}

// NumberParam encodes n zero padded to the parameter width
func NumberParam(n int) string {
	return padLeft(strconv.Itoa(n), ParamSize, '0')
}

// FlagParam encodes a boolean
func FlagParam(on bool) string {
	if on {
		return NumberParam(1)
	}
	return NumberParam(0)
}

// TextParam encodes s padded with #
func TextParam(s string) string {
	return padRight(s, ParamSize, '#')
}

// Input types and their Simple IP codes
var inputTypes = []struct {
	name string
	code int
}{
	{"TV", 0},
	{"HDMI", 10000},
	{"SCART", 20000},
	{"Composite", 30000},
	{"Component", 40000},
	{"Screen Mirroring", 50000},
	{"PC RGB Input", 60000},
}

// InputParam encodes an input such as "hdmi 2" or "tv"
func InputParam(input string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(input))
	for _, it := range inputTypes {
		if !strings.HasPrefix(lower, strings.ToLower(it.name)) {
			continue
		}
		port := 0
		if it.code != 0 {
			if rest := strings.TrimSpace(lower[len(it.name):]); rest != "" {
				n, err := strconv.Atoi(rest)
				if err != nil {
					return "", fmt.Errorf("the port number on the input is invalid (not an integer): %s", input)
				}
				port = n
			}
		}
		return padLeft(strconv.Itoa(it.code), 12, '0') + padLeft(strconv.Itoa(port), 4, '0'), nil
	}
	return "", fmt.Errorf("unknown input: %s", input)
}

// InputName decodes an INPT parameter back to a name such as "HDMI 2"
func InputName(param string) string {
	if len(param) != ParamSize {
		return param
	}
	code, err1 := atoiPadded(param[:12])
	port, err2 := atoiPadded(param[12:])
	if err1 != nil || err2 != nil {
		return param
	}
	for _, it := range inputTypes {
		if it.code == code {
			if code == 0 {
				return it.name
			}
			return fmt.Sprintf("%s %d", it.name, port)
		}
	}
	return param
}
