package bravia

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"sonyhub/internal/access"
	"sonyhub/internal/device"
	"sonyhub/internal/ircc"
	"sonyhub/internal/logger"
	"sonyhub/internal/scalarweb"
	"sonyhub/internal/transport"
)

// BraviaRemote implements the Device interface for Sony Bravia TVs
type BraviaRemote struct {
	client *BraviaClient
	info   device.DeviceInfo
	events *device.EventLog

	// services whose pushed events are recorded
	eventServices []string
	listener      *transport.ListenerFuncs

	logger zerolog.Logger
}

// RemoteOption configures a BraviaRemote
type RemoteOption func(*BraviaRemote)

// WithEventServices subscribes to notifications of services on Start
func WithEventServices(services ...string) RemoteOption {
	return func(br *BraviaRemote) {
		br.eventServices = append(br.eventServices, services...)
	}
}

// NewBraviaRemote creates a new BraviaRemote device
func NewBraviaRemote(id string, client *BraviaClient, opts ...RemoteOption) *BraviaRemote {
	br := &BraviaRemote{
		client: client,
		info: device.DeviceInfo{
			ID:           id,
			Type:         "bravia",
			Model:        "Sony Bravia",
			Address:      client.Host(),
			Capabilities: capabilities,
		},
		events: device.NewEventLog(device.DefaultEventLogSize),
		logger: logger.Component("bravia_remote").With().Str("device", id).Logger(),
	}
	for _, opt := range opts {
		opt(br)
	}

	br.listener = &transport.ListenerFuncs{
		Event: br.onEvent,
		Error: func(err error) {
			br.logger.Debug().Err(err).Msg("Transport error")
		},
	}
	return br
}

// GetDeviceInfo returns information about this Bravia device
func (br *BraviaRemote) GetDeviceInfo() device.DeviceInfo {
	return br.info
}

// Client returns the underlying client
func (br *BraviaRemote) Client() *BraviaClient {
	return br.client
}

// Start subscribes to the notifications of the event services. Services
// whose transport can't push events are skipped.
func (br *BraviaRemote) Start(ctx context.Context) error {
	for _, name := range br.eventServices {
		if err := br.Subscribe(ctx, name); err != nil {
			br.logger.Warn().Err(err).Str("service", name).Msg("Failed to subscribe to events")
		}
	}
	return nil
}

// Subscribe records the pushed events of service
func (br *BraviaRemote) Subscribe(ctx context.Context, service string) error {
	s, err := br.client.Service(ctx, service)
	if err != nil {
		return err
	}
	if s.Transport().ProtocolType() != transport.ProtocolWebSocket {
		return fmt.Errorf("service %s is not on a websocket, events can't be pushed", service)
	}

	s.Transport().RemoveListener(br.listener)
	s.Transport().AddListener(br.listener)

	if _, err := s.SwitchNotifications(ctx); err != nil {
		return err
	}
	br.logger.Info().Str("service", service).Msg("Subscribed to events")
	return nil
}

func (br *BraviaRemote) onEvent(event *scalarweb.Event) {
	payload, err := json.Marshal(event.Params)
	if err != nil {
		payload = nil
	}
	br.events.Add(device.Event{
		Time:    time.Now(),
		Source:  br.info.ID,
		Name:    event.Method,
		Payload: payload,
	})
}

// RecentEvents returns the recorded events, oldest first
func (br *BraviaRemote) RecentEvents() []device.Event {
	return br.events.Recent()
}

// Process handles JSON action requests and routes them to appropriate methods
func (br *BraviaRemote) Process(ctx context.Context, actionJSON []byte) (*device.ActionResponse, error) {
	// Parse the action request
	request, err := device.ParseActionRequest(actionJSON)
	if err != nil {
		return device.Failed("%s", err), nil
	}

	// Route based on action type
	switch request.Type {
	case device.ActionTypeRemote:
		return br.processRemoteAction(ctx, request)
	case device.ActionTypeControl:
		return br.processControlAction(ctx, request)
	case device.ActionTypeCall:
		return br.processCallAction(ctx, request)
	default:
		return device.Failed("unsupported action type: %s", request.Type), nil
	}
}

// processRemoteAction handles remote control actions. A raw base64 code may
// be given in the code parameter.
func (br *BraviaRemote) processRemoteAction(ctx context.Context, request *device.ActionRequest) (*device.ActionResponse, error) {
	code, exists := ircc.Lookup(request.Action)
	if raw, ok := request.Param("code"); ok {
		code, exists = ircc.Code(raw), true
	}
	if !exists {
		return device.Failed("unsupported remote action: %s", request.Action), nil
	}

	if err := br.client.RemoteRequest(ctx, code); err != nil {
		return device.Failed("remote request failed: %v", err), nil
	}

	return device.Succeeded(fmt.Sprintf("Remote action '%s' executed successfully", request.Action)), nil
}

// processControlAction handles API control actions
func (br *BraviaRemote) processControlAction(ctx context.Context, request *device.ActionRequest) (*device.ActionResponse, error) {
	controlAction := device.ControlAction(request.Action)

	if controlAction == device.ControlActionRegister {
		var result access.Result
		if renew, _ := request.Bool("renew"); renew {
			result = br.client.RenewAccess(ctx)
		} else {
			code, _ := request.Param("code")
			result = br.client.RequestAccess(ctx, code)
		}
		if !result.IsOK() {
			return &device.ActionResponse{Success: false, Data: result, Error: result.Message}, nil
		}
		return device.Succeeded(result), nil
	}

	if controlAction == device.ControlActionSetPower {
		if on, err := request.Bool("status"); err == nil && on {
			br.client.WakeUp(ctx)
		}
	}

	actionInfo, exists := controlActionMap[controlAction]
	if !exists {
		return device.Failed("unsupported control action: %s", request.Action), nil
	}

	var params []any
	if actionInfo.params != nil {
		p, err := actionInfo.params(request)
		if err != nil {
			return device.Failed("invalid parameters: %v", err), nil
		}
		params = p
	}

	res := br.client.Call(ctx, actionInfo.service, actionInfo.method, "", params...)
	return resultResponse(res), nil
}

// processCallAction runs an arbitrary ScalarWeb method. The action is the
// method name; service is required, version and params are optional.
func (br *BraviaRemote) processCallAction(ctx context.Context, request *device.ActionRequest) (*device.ActionResponse, error) {
	service, ok := request.Param("service")
	if !ok || service == "" {
		return device.Failed("service parameter is required for call action"), nil
	}
	version, _ := request.Param("version")

	var params []any
	switch p := request.Parameters["params"].(type) {
	case nil:
	case []interface{}:
		params = p
	default:
		params = []any{p}
	}

	res := br.client.Call(ctx, service, request.Action, version, params...)
	return resultResponse(res), nil
}

// resultResponse turns a ScalarWeb result into an action response. A single
// result element is unwrapped.
func resultResponse(res *scalarweb.Result) *device.ActionResponse {
	if res.IsError() {
		return &device.ActionResponse{
			Success: false,
			Data:    map[string]interface{}{"code": res.DeviceErrorCode()},
			Error:   res.DeviceErrorDesc(),
		}
	}
	if !res.HasResults() {
		return device.Succeeded(nil)
	}
	if len(res.Results) == 1 {
		return device.Succeeded(res.Results[0])
	}
	return device.Succeeded(res.Results)
}

// Close releases every transport to the TV
func (br *BraviaRemote) Close() error {
	return br.client.Close()
}
