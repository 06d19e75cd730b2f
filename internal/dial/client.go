// Package dial launches and inspects applications on Sony devices through
// the DIAL protocol.
package dial

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"sonyhub/internal/logger"
	"sonyhub/internal/sonynet"
	"sonyhub/internal/transport"
)

// HeaderApplicationURL names the header pointing at the app endpoints
const HeaderApplicationURL = "Application-URL"

// Client talks to the DIAL service of one device
type Client struct {
	transport transport.Transport
	appURL    *url.URL
	devices   []DeviceInfo
	logger    zerolog.Logger
}

// Get reads the device description at dialURL and the apps list of every
// DIAL device it declares. With ignoreAuth a 403 on an apps list is
// tolerated and the device is kept without apps.
func Get(ctx context.Context, t transport.Transport, dialURL string, ignoreAuth bool) (*Client, error) {
	log := logger.Component("dial")

	resp := transport.ExecuteGet(ctx, t, dialURL)
	if !resp.OK() {
		return nil, fmt.Errorf("failed to read DIAL description %s: %w", dialURL, resp.Err())
	}

	infos, err := parseDeviceInfos(resp.Body)
	if err != nil {
		return nil, err
	}

	var devices []DeviceInfo
	for _, info := range infos {
		if strings.TrimSpace(info.AppsListURL) == "" {
			continue
		}

		appsResp := transport.ExecuteGet(ctx, t, info.AppsListURL)
		switch {
		case appsResp.OK():
			apps, err := parseApps(appsResp.Body)
			if err != nil {
				log.Debug().Err(err).Str("url", info.AppsListURL).Msg("Ignoring unreadable apps list")
				continue
			}
			info.Apps = apps
			devices = append(devices, info)
		case ignoreAuth && appsResp.StatusCode == http.StatusForbidden:
			devices = append(devices, info)
		default:
			return nil, fmt.Errorf("failed to read apps list %s: %w", info.AppsListURL, appsResp.Err())
		}
	}

	rawAppURL := resp.Header.Get(HeaderApplicationURL)
	if rawAppURL == "" {
		return nil, fmt.Errorf("DIAL description %s has no %s header", dialURL, HeaderApplicationURL)
	}
	appURL, err := url.Parse(rawAppURL)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", HeaderApplicationURL, rawAppURL, err)
	}

	return &Client{
		transport: t,
		appURL:    appURL,
		devices:   devices,
		logger:    log.With().Str("app_url", rawAppURL).Logger(),
	}, nil
}

// AppURL is the root under which apps are started and stopped
func (c *Client) AppURL() string {
	return c.appURL.String()
}

// HasDialService reports whether any DIAL device was found
func (c *Client) HasDialService() bool {
	return len(c.devices) > 0
}

// Devices returns the DIAL devices found
func (c *Client) Devices() []DeviceInfo {
	return c.devices
}

// FirstDeviceID returns the first non empty device id
func (c *Client) FirstDeviceID() string {
	for _, d := range c.devices {
		if d.DeviceID != "" {
			return d.DeviceID
		}
	}
	return ""
}

// Apps lists every app of every device
func (c *Client) Apps() []App {
	var apps []App
	for _, d := range c.devices {
		apps = append(apps, d.Apps...)
	}
	return apps
}

// App finds an app by id, ignoring case
func (c *Client) App(appID string) (App, bool) {
	for _, d := range c.devices {
		for _, app := range d.Apps {
			if strings.EqualFold(app.ID, appID) {
				return app, true
			}
		}
	}
	return App{}, false
}

func (c *Client) appEndpoint(appID string) string {
	return sonynet.JoinURL(c.appURL.String(), url.PathEscape(appID))
}

// AppState asks the device whether appID is running
func (c *Client) AppState(ctx context.Context, appID string) (*AppState, error) {
	resp := transport.ExecuteGet(ctx, c.transport, c.appEndpoint(appID))
	if !resp.OK() {
		return nil, fmt.Errorf("failed to read state of %s: %w", appID, resp.Err())
	}
	return parseAppState(resp.Body)
}

// SetState starts (POST) or stops (DELETE) appID. Sony devices rarely
// support stopping but the request is still made.
func (c *Client) SetState(ctx context.Context, appID string, start bool) *sonynet.Response {
	endpoint := c.appEndpoint(appID)

	var resp *sonynet.Response
	if start {
		resp = transport.ExecutePostXML(ctx, c.transport, endpoint, "")
	} else {
		resp = transport.ExecuteDelete(ctx, c.transport, endpoint)
	}

	// TODO: these comparisons read inverted (503 is the "another app is
	// running" answer); confirm against a real device before flipping them
	if resp.StatusCode != http.StatusServiceUnavailable {
		c.logger.Debug().Str("app", appID).Msg("Cannot start app, another application is currently running")
	} else if resp.StatusCode != http.StatusCreated {
		c.logger.Debug().Str("app", appID).Int("status", resp.StatusCode).Msg("Error setting the state of the application")
	}

	return resp
}

// Icon downloads the icon of appID. It returns false when the app has no
// icon or the download fails.
func (c *Client) Icon(ctx context.Context, appID string) ([]byte, bool) {
	app, ok := c.App(appID)
	if !ok || app.IconURL == "" {
		return nil, false
	}
	resp := transport.ExecuteGet(ctx, c.transport, app.IconURL)
	if !resp.OK() {
		return nil, false
	}
	return resp.Body, true
}
