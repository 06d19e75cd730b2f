// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ircc sends infrared remote commands to Sony devices over the
// UPnP IRCC SOAP service.
package ircc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"sonyhub/internal/logger"
	"sonyhub/internal/sonynet"
	"sonyhub/internal/transport"
)

const (
	// ServiceType is the UPnP type of the IRCC service
	ServiceType = "urn:schemas-sony-com:service:IRCC:1"

	// ActionSendIRCC is the SOAP action that fires a code
	ActionSendIRCC = "X_SendIRCC"

	// HeaderSOAPAction carries the quoted service#action pair
	HeaderSOAPAction = "SOAPACTION"
)

// Registration types accepted by the register action
const (
	RegistrationInitial = "initial"
	RegistrationNew     = "new"
	RegistrationRenewal = "renewal"
)

const envelopeFormat = `<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
  <s:Body>
    <u:%s xmlns:u="%s">
      <IRCCCode>%s</IRCCCode>
    </u:%s>
  </s:Body>
</s:Envelope>`

// Envelope builds the SOAP body that sends code
func Envelope(code Code) string {
	return fmt.Sprintf(envelopeFormat, ActionSendIRCC, ServiceType, string(code), ActionSendIRCC)
}

// SOAPAction is the header value for X_SendIRCC, quotes included
func SOAPAction() string {
	return `"` + ServiceType + "#" + ActionSendIRCC + `"`
}

// Client sends IRCC commands through a transport
type Client struct {
	transport        transport.Transport
	controlURL       string
	registerURL      string
	registrationMode int
	logger           zerolog.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithControlURL overrides the IRCC control endpoint
func WithControlURL(u string) ClientOption {
	return func(c *Client) {
		c.controlURL = u
	}
}

// WithRegisterURL sets the register action endpoint of devices that pair
// through IRCC
func WithRegisterURL(u string) ClientOption {
	return func(c *Client) {
		c.registerURL = u
	}
}

// WithRegistrationMode records the mode the device advertises for register
func WithRegistrationMode(mode int) ClientOption {
	return func(c *Client) {
		c.registrationMode = mode
	}
}

// NewClient creates a client for the device at deviceURL. The control URL
// defaults to <device>/sony/IRCC.
func NewClient(t transport.Transport, deviceURL string, opts ...ClientOption) (*Client, error) {
	u, err := sonynet.ParseDeviceURL(deviceURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		transport:  t,
		controlURL: sonynet.SonyURL(u, "IRCC"),
		logger:     logger.Component("ircc"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ControlURL is where codes are posted
func (c *Client) ControlURL() string {
	return c.controlURL
}

// RegisterURL is the IRCC register endpoint, empty when the device has none
func (c *Client) RegisterURL() string {
	return c.registerURL
}

// RegistrationMode is the advertised register mode, 0 when unknown
func (c *Client) RegistrationMode() int {
	return c.registrationMode
}

// SendCode fires code at the device
func (c *Client) SendCode(ctx context.Context, code Code) *sonynet.Response {
	c.logger.Debug().
		Str("url", c.controlURL).
		Str("code", string(code)).
		Msg("Sending IRCC code")

	resp := transport.ExecutePostXML(ctx, c.transport, c.controlURL, Envelope(code),
		transport.NewHeader(HeaderSOAPAction, SOAPAction()))

	if !resp.OK() {
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("body", resp.Content()).
			Msg("IRCC request failed")
	}
	return resp
}

// Register calls the register action with registrationType. A non empty
// accessCode is sent as basic authorization.
func (c *Client) Register(ctx context.Context, registrationType, accessCode string) *sonynet.Response {
	if c.registerURL == "" {
		return sonynet.NewResponse(http.StatusServiceUnavailable, "No registration URL")
	}

	q := url.Values{}
	q.Set("name", sonynet.DeviceName())
	q.Set("registrationType", registrationType)
	q.Set("deviceId", sonynet.DeviceID)

	var opts []transport.Option
	if accessCode != "" {
		opts = append(opts, transport.NewHeader(sonynet.AuthHeader(accessCode)))
	}

	c.logger.Debug().
		Str("url", c.registerURL).
		Str("type", registrationType).
		Msg("Registering through IRCC")

	return transport.ExecuteGet(ctx, c.transport, c.registerURL+"?"+q.Encode(), opts...)
}

// RegistrationOrder returns the registration types to try. Mode 2 devices
// expect "new" first, everyone else "initial".
func (c *Client) RegistrationOrder() []string {
	if c.registrationMode == 2 {
		return []string{RegistrationNew, RegistrationInitial}
	}
	return []string{RegistrationInitial, RegistrationNew}
}
