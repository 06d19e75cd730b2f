package simpleip

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"sonyhub/internal/logger"
	"sonyhub/internal/sonynet"
)

// Client sends Simple IP commands. Devices want every command on its own
// connection, so nothing is held open between calls.
type Client struct {
	host    string
	address string
	mac     string
	logger  zerolog.Logger

	mu        sync.RWMutex
	listeners []func(Message)
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithMACAddress enables wake-on-lan before powering on
func WithMACAddress(mac string) ClientOption {
	return func(c *Client) {
		c.mac = mac
	}
}

// NewClient creates a client for host:port. A zero port means DefaultPort.
func NewClient(host string, port int, opts ...ClientOption) *Client {
	if port == 0 {
		port = DefaultPort
	}
	c := &Client{
		host:    host,
		address: net.JoinHostPort(host, strconv.Itoa(port)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.Component("simpleip").With().Str("address", c.address).Logger()
	return c
}

// Address is host:port of the device
func (c *Client) Address() string {
	return c.address
}

// AddListener registers fn for notifications received by Listen
func (c *Client) AddListener(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Send writes one command and waits for the device's answer to it. Lines
// answering other commands are skipped.
func (c *Client) Send(ctx context.Context, t Type, cmd Command, param string) (Message, error) {
	line, err := Encode(t, cmd, param)
	if err != nil {
		return Message{}, err
	}

	c.logger.Debug().Str("command", line).Msg("Sending")

	var answer *Message
	err = sonynet.SendSocketRequest(ctx, c.address, line, func(rsp string) bool {
		if rsp == "" {
			return false
		}
		msg, err := Parse(rsp)
		if err != nil {
			c.logger.Warn().Str("response", rsp).Str("command", line).Msg("Unparsable response")
			return false
		}
		if msg.Type != TypeAnswer || msg.Command != cmd {
			c.dispatch(msg)
			return false
		}
		answer = &msg
		return true
	})
	if err != nil {
		return Message{}, err
	}
	if answer == nil {
		return Message{}, fmt.Errorf("%s: %w", cmd, ErrNoAnswer)
	}

	c.logger.Debug().Str("command", line).Str("result", answer.String()).Msg("Answered")
	return *answer, answer.Err()
}

func (c *Client) control(ctx context.Context, cmd Command, param string) error {
	_, err := c.Send(ctx, TypeControl, cmd, param)
	return err
}

func (c *Client) query(ctx context.Context, cmd Command) (Message, error) {
	return c.Send(ctx, TypeQuery, cmd, NoParam)
}

// Power reports whether the device is on
func (c *Client) Power(ctx context.Context) (bool, error) {
	msg, err := c.query(ctx, CmdPower)
	if err != nil {
		return false, err
	}
	return msg.Bool()
}

// SetPower turns the device on or off. Turning on sends a wake-on-lan
// packet first when a MAC address is known.
func (c *Client) SetPower(ctx context.Context, on bool) error {
	if on && c.mac != "" {
		c.logger.Debug().Str("mac", c.mac).Msg("Sending WOL packet")
		if err := sonynet.SendWOL(ctx, c.host, c.mac); err != nil {
			c.logger.Debug().Err(err).Msg("WOL failed - ignored")
		}
	}
	return c.control(ctx, CmdPower, FlagParam(on))
}

// TogglePower flips the power state
func (c *Client) TogglePower(ctx context.Context) error {
	return c.control(ctx, CmdTogglePower, NoParam)
}

// Volume returns the current volume
func (c *Client) Volume(ctx context.Context) (int, error) {
	msg, err := c.query(ctx, CmdVolume)
	if err != nil {
		return 0, err
	}
	return msg.Int()
}

// SetVolume sets the volume, 0 to 100
func (c *Client) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 100 {
		return fmt.Errorf("volume must be between 0-100: %d", volume)
	}
	return c.control(ctx, CmdVolume, NumberParam(volume))
}

// Muted reports whether audio is muted
func (c *Client) Muted(ctx context.Context) (bool, error) {
	msg, err := c.query(ctx, CmdAudioMute)
	if err != nil {
		return false, err
	}
	return msg.Bool()
}

// SetMute mutes or unmutes audio
func (c *Client) SetMute(ctx context.Context, on bool) error {
	return c.control(ctx, CmdAudioMute, FlagParam(on))
}

// SendIRCC fires the numeric IR code
func (c *Client) SendIRCC(ctx context.Context, code int) error {
	if code < 0 {
		return fmt.Errorf("invalid IR code %d", code)
	}
	return c.control(ctx, CmdIRCC, NumberParam(code))
}

// Input returns the current input, for example "HDMI 1"
func (c *Client) Input(ctx context.Context) (string, error) {
	msg, err := c.query(ctx, CmdInput)
	if err != nil {
		return "", err
	}
	return InputName(msg.Param), nil
}

// SetInput switches to input, for example "hdmi 2"
func (c *Client) SetInput(ctx context.Context, input string) error {
	param, err := InputParam(input)
	if err != nil {
		return err
	}
	return c.control(ctx, CmdInput, param)
}

// SetPictureMute blanks or restores the picture
func (c *Client) SetPictureMute(ctx context.Context, on bool) error {
	return c.control(ctx, CmdPictureMute, FlagParam(on))
}

// SetScene selects a picture scene by name
func (c *Client) SetScene(ctx context.Context, scene string) error {
	if scene == "" || len(scene) > ParamSize {
		return fmt.Errorf("invalid scene %q", scene)
	}
	return c.control(ctx, CmdScene, TextParam(scene))
}

// MACAddress asks the device for the MAC of netInterface, eth0 or wlan0
func (c *Client) MACAddress(ctx context.Context, netInterface string) (string, error) {
	msg, err := c.Send(ctx, TypeQuery, CmdMACAddress, TextParam(netInterface))
	if err != nil {
		return "", err
	}
	return msg.Text(), nil
}

// Listen keeps a session open and dispatches every notification to the
// listeners until ctx is done or the device hangs up
func (c *Client) Listen(ctx context.Context) error {
	d := net.Dialer{Timeout: sonynet.SocketTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.address, err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	c.logger.Debug().Msg("Listening for notifications")

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		msg, err := Parse(line)
		if err != nil {
			c.logger.Debug().Str("line", line).Msg("Ignoring unparsable line")
			continue
		}
		c.dispatch(msg)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("notification session failed: %w", err)
	}
	return nil
}

func (c *Client) dispatch(msg Message) {
	if msg.Type != TypeNotify {
		return
	}
	c.mu.RLock()
	listeners := make([]func(Message), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn(msg)
	}
}
