package simpleip

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"sonyhub/internal/device"
)

// IR codes accepted by the IRCC command, keyed by remote action
var irCodes = map[device.RemoteAction]int{
	device.RemoteActionPower:       98,
	device.RemoteActionVolumeUp:    30,
	device.RemoteActionVolumeDown:  31,
	device.RemoteActionMute:        32,
	device.RemoteActionChannelUp:   33,
	device.RemoteActionChannelDown: 34,
	device.RemoteActionUp:          9,
	device.RemoteActionDown:        10,
	device.RemoteActionRight:       11,
	device.RemoteActionLeft:        12,
	device.RemoteActionConfirm:     13,
	device.RemoteActionHome:        6,
	device.RemoteActionBack:        8,
	device.RemoteActionInput:       101,
	device.RemoteActionHDMI1:       124,
	device.RemoteActionHDMI2:       125,
	device.RemoteActionHDMI3:       126,
	device.RemoteActionHDMI4:       127,
}

// Remote exposes a Simple IP display as a device
type Remote struct {
	client *Client
	info   device.DeviceInfo
	events *device.EventLog

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRemote wraps client as the device id
func NewRemote(id string, client *Client) *Remote {
	r := &Remote{
		client: client,
		info: device.DeviceInfo{
			ID:      id,
			Type:    "simpleip",
			Model:   "Sony Simple IP display",
			Address: client.Address(),
			Capabilities: []string{
				"remote_control",
				"system_control",
				"audio_control",
				"picture_control",
				"events",
			},
		},
		events: device.NewEventLog(device.DefaultEventLogSize),
	}
	client.AddListener(r.onNotify)
	return r
}

func (r *Remote) GetDeviceInfo() device.DeviceInfo {
	return r.info
}

func (r *Remote) RecentEvents() []device.Event {
	return r.events.Recent()
}

func (r *Remote) onNotify(msg Message) {
	payload, _ := json.Marshal(map[string]string{"param": msg.Param})
	r.events.Add(device.Event{
		Time:    time.Now(),
		Source:  r.info.ID,
		Name:    string(msg.Command),
		Payload: payload,
	})
}

// Start keeps a notification session open in the background, reconnecting
// after the device hangs up
func (r *Remote) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		for {
			err := r.client.Listen(ctx)
			if ctx.Err() != nil {
				return
			}
			r.client.logger.Debug().Err(err).Msg("Notification session ended - reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}()
	return nil
}

func (r *Remote) Process(ctx context.Context, actionJSON []byte) (*device.ActionResponse, error) {
	request, err := device.ParseActionRequest(actionJSON)
	if err != nil {
		return device.Failed("%s", err), nil
	}

	switch request.Type {
	case device.ActionTypeRemote:
		return r.processRemoteAction(ctx, request), nil
	case device.ActionTypeControl:
		return r.processControlAction(ctx, request), nil
	default:
		return device.Failed("unsupported action type: %s", request.Type), nil
	}
}

func (r *Remote) processRemoteAction(ctx context.Context, request *device.ActionRequest) *device.ActionResponse {
	var err error
	switch action := device.RemoteAction(request.Action); action {
	case device.RemoteActionPowerOn:
		err = r.client.SetPower(ctx, true)
	case device.RemoteActionPowerOff:
		err = r.client.SetPower(ctx, false)
	default:
		code, ok := irCodes[action]
		if !ok {
			return device.Failed("unsupported remote action: %s", request.Action)
		}
		err = r.client.SendIRCC(ctx, code)
	}
	if err != nil {
		return device.Failed("remote request failed: %v", err)
	}
	return device.Succeeded(fmt.Sprintf("Remote action '%s' executed successfully", request.Action))
}

func (r *Remote) processControlAction(ctx context.Context, request *device.ActionRequest) *device.ActionResponse {
	switch device.ControlAction(request.Action) {
	case device.ControlActionPowerStatus:
		on, err := r.client.Power(ctx)
		if err != nil {
			return device.Failed("%v", err)
		}
		status := "standby"
		if on {
			status = "active"
		}
		return device.Succeeded(map[string]string{"status": status})

	case device.ControlActionSetPower:
		on, err := request.Bool("status")
		if err != nil {
			return device.Failed("invalid parameters: %v", err)
		}
		return done(r.client.SetPower(ctx, on))

	case device.ControlActionVolumeInfo:
		volume, err := r.client.Volume(ctx)
		if err != nil {
			return device.Failed("%v", err)
		}
		muted, err := r.client.Muted(ctx)
		if err != nil {
			return device.Failed("%v", err)
		}
		return device.Succeeded(map[string]interface{}{"volume": volume, "mute": muted})

	case device.ControlActionSetVolume:
		volume, err := request.Int("volume")
		if err != nil {
			return device.Failed("invalid parameters: %v", err)
		}
		return done(r.client.SetVolume(ctx, volume))

	case device.ControlActionSetMute:
		on, err := request.Bool("status")
		if err != nil {
			return device.Failed("invalid parameters: %v", err)
		}
		return done(r.client.SetMute(ctx, on))

	case device.ControlActionInput:
		input, err := r.client.Input(ctx)
		if err != nil {
			return device.Failed("%v", err)
		}
		return device.Succeeded(map[string]string{"input": input})

	case device.ControlActionSetInput:
		input, ok := request.Param("input")
		if !ok {
			return device.Failed("invalid parameters: input parameter is required for %s action", request.Action)
		}
		return done(r.client.SetInput(ctx, input))

	case device.ControlActionSetPictureMute:
		on, err := request.Bool("status")
		if err != nil {
			return device.Failed("invalid parameters: %v", err)
		}
		return done(r.client.SetPictureMute(ctx, on))

	case device.ControlActionSetScene:
		scene, ok := request.Param("scene")
		if !ok {
			return device.Failed("invalid parameters: scene parameter is required for %s action", request.Action)
		}
		return done(r.client.SetScene(ctx, scene))

	case device.ControlActionMACAddress:
		iface, ok := request.Param("interface")
		if !ok {
			iface = "eth0"
		}
		mac, err := r.client.MACAddress(ctx, iface)
		if err != nil {
			return device.Failed("%v", err)
		}
		return device.Succeeded(map[string]string{"interface": iface, "mac": mac})
	}
	return device.Failed("unsupported control action: %s", request.Action)
}

func done(err error) *device.ActionResponse {
	if err != nil {
		return device.Failed("%v", err)
	}
	return device.Succeeded(nil)
}

// Close stops the notification session
func (r *Remote) Close() error {
	r.mu.Lock()
	cancel, finished := r.cancel, r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-finished
	}
	return nil
}
