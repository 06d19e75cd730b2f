package dial

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"sonyhub/internal/device"
	"sonyhub/internal/transport"
)

// Remote exposes the DIAL service of a device as a device. The description
// is read on first use and kept.
type Remote struct {
	id         string
	dialURL    string
	ignoreAuth bool
	transport  transport.Transport

	mu     sync.Mutex
	client *Client
}

// NewRemote creates a DIAL device reading its description from dialURL
func NewRemote(id, dialURL string, t transport.Transport, ignoreAuth bool) *Remote {
	return &Remote{id: id, dialURL: dialURL, transport: t, ignoreAuth: ignoreAuth}
}

func (r *Remote) GetDeviceInfo() device.DeviceInfo {
	return device.DeviceInfo{
		ID:           r.id,
		Type:         "dial",
		Model:        "DIAL device",
		Address:      r.dialURL,
		Capabilities: []string{"app_control"},
	}
}

func (r *Remote) dial(ctx context.Context) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}
	c, err := Get(ctx, r.transport, r.dialURL, r.ignoreAuth)
	if err != nil {
		return nil, err
	}
	r.client = c
	return c, nil
}

func (r *Remote) Process(ctx context.Context, actionJSON []byte) (*device.ActionResponse, error) {
	request, err := device.ParseActionRequest(actionJSON)
	if err != nil {
		return device.Failed("%s", err), nil
	}
	if request.Type != device.ActionTypeApp {
		return device.Failed("unsupported action type: %s", request.Type), nil
	}

	c, err := r.dial(ctx)
	if err != nil {
		return device.Failed("DIAL unavailable: %v", err), nil
	}

	action := device.AppAction(request.Action)
	if action == device.AppActionList {
		return device.Succeeded(c.Apps()), nil
	}

	appID, ok := request.Param("app")
	if !ok || appID == "" {
		return device.Failed("app parameter is required for %s action", request.Action), nil
	}

	switch action {
	case device.AppActionState:
		state, err := c.AppState(ctx, appID)
		if err != nil {
			return device.Failed("%v", err), nil
		}
		return device.Succeeded(state), nil

	case device.AppActionStart, device.AppActionStop:
		resp := c.SetState(ctx, appID, action == device.AppActionStart)
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return device.Failed("%s %s failed: %d %s", action, appID, resp.StatusCode, resp.Content()), nil
		}
		return device.Succeeded(fmt.Sprintf("App '%s' %s requested", appID, action)), nil
	}

	return device.Failed("unsupported app action: %s", request.Action), nil
}

func (r *Remote) Close() error {
	return r.transport.Close()
}
