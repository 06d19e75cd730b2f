package bravia

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"sonyhub/internal/access"
	"sonyhub/internal/ircc"
	"sonyhub/internal/logger"
	"sonyhub/internal/scalarweb"
	"sonyhub/internal/sonynet"
	"sonyhub/internal/transport"
)

// ErrClientClosed is returned by Service once the client is closed
var ErrClientClosed = errors.New("bravia client closed")

// BraviaClient talks to one Bravia TV: ScalarWeb services for control, IRCC
// for remote keys and the access control dance for pairing
type BraviaClient struct {
	deviceURL  *url.URL
	accessCode string
	autoAuth   bool
	webSocket  bool
	wsPort     int
	irccURL    string
	mac        string
	httpClient *http.Client
	known      []scalarweb.ServiceProtocol

	factory *transport.Factory
	http    *transport.HTTPTransport
	ircc    *ircc.Client

	mu       sync.Mutex
	services map[string]*Service
	closed   bool

	logger zerolog.Logger
}

// ClientOption configures a BraviaClient
type ClientOption func(*BraviaClient)

// WithAccessCode sets the pre-shared key or pairing code
func WithAccessCode(code string) ClientOption {
	return func(c *BraviaClient) {
		c.accessCode = code
	}
}

// WithAutoAuth enables cookie registration on every request
func WithAutoAuth(enabled bool) ClientOption {
	return func(c *BraviaClient) {
		c.autoAuth = enabled
	}
}

// WithWebSocket allows services that advertise it to use a websocket
func WithWebSocket(enabled bool) ClientOption {
	return func(c *BraviaClient) {
		c.webSocket = enabled
	}
}

// WithWebSocketPort overrides the device's websocket port
func WithWebSocketPort(port int) ClientOption {
	return func(c *BraviaClient) {
		c.wsPort = port
	}
}

// WithIRCCURL overrides the IRCC control URL
func WithIRCCURL(u string) ClientOption {
	return func(c *BraviaClient) {
		c.irccURL = u
	}
}

// WithMACAddress enables wake-on-lan when the TV is powered on
func WithMACAddress(mac string) ClientOption {
	return func(c *BraviaClient) {
		c.mac = mac
	}
}

// WithHTTPClient sets the HTTP client template for every HTTP transport.
// Cookie registration uses it as well.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *BraviaClient) {
		c.httpClient = hc
	}
}

// WithServices seeds the service list so discovery isn't needed
func WithServices(services ...scalarweb.ServiceProtocol) ClientOption {
	return func(c *BraviaClient) {
		c.known = append(c.known, services...)
	}
}

// NewBraviaClient creates a client for the TV at address, either a host or
// a full URL
func NewBraviaClient(address string, opts ...ClientOption) (*BraviaClient, error) {
	u, err := sonynet.ParseDeviceURL(address)
	if err != nil {
		return nil, err
	}

	c := &BraviaClient{
		deviceURL: u,
		services:  make(map[string]*Service),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.Component("bravia").With().Str("host", u.Host).Logger()

	var httpOpts []transport.HTTPOption
	if c.httpClient != nil {
		httpOpts = append(httpOpts, transport.WithHTTPClient(c.httpClient), transport.WithAuthClient(c.httpClient))
	}

	factoryOpts := []transport.FactoryOption{
		transport.WithHTTPOptions(httpOpts...),
		transport.WithTransportOptions(c.credentials()...),
	}
	if c.webSocket {
		factoryOpts = append(factoryOpts, transport.WithWebSocketDialer(websocket.DefaultDialer))
		if c.wsPort > 0 {
			factoryOpts = append(factoryOpts, transport.WithWebSocketPort(c.wsPort))
		}
	}

	c.factory, err = transport.NewFactory(c.sonyURL(), factoryOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport factory: %w", err)
	}

	c.http, err = transport.NewHTTPTransport(c.sonyURL(), httpOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create http transport: %w", err)
	}
	for _, opt := range c.credentials() {
		c.http.SetOption(opt)
	}

	var irccOpts []ircc.ClientOption
	if c.irccURL != "" {
		irccOpts = append(irccOpts, ircc.WithControlURL(c.irccURL))
	}
	c.ircc, err = ircc.NewClient(c.http, u.String(), irccOpts...)
	if err != nil {
		c.http.Close()
		return nil, fmt.Errorf("failed to create ircc client: %w", err)
	}

	return c, nil
}

func (c *BraviaClient) sonyURL() string {
	return sonynet.BaseURL(c.deviceURL) + "/sony"
}

// credentials are the persistent options every transport to the TV carries
func (c *BraviaClient) credentials() []transport.Option {
	opts := []transport.Option{
		transport.AutoAuth(c.autoAuth),
		transport.NewHeader(sonynet.HeaderDeviceID, sonynet.DeviceID),
	}
	if c.accessCode != "" && !strings.EqualFold(c.accessCode, access.RequestCode) {
		opts = append(opts, transport.NewHeader(sonynet.AccessCodeHeader(c.accessCode)))
	}
	return opts
}

// Host returns host[:port] of the TV
func (c *BraviaClient) Host() string {
	return c.deviceURL.Host
}

// WakeUp broadcasts a wake-on-lan packet when a MAC address is known.
// Failures are only logged.
func (c *BraviaClient) WakeUp(ctx context.Context) {
	if c.mac == "" {
		return
	}
	if err := sonynet.SendWOL(ctx, c.deviceURL.Hostname(), c.mac); err != nil {
		c.logger.Debug().Err(err).Str("mac", c.mac).Msg("Wake-on-lan failed")
	}
}

// IRCC returns the remote control client
func (c *BraviaClient) IRCC() *ircc.Client {
	return c.ircc
}

// RemoteRequest presses one remote key
func (c *BraviaClient) RemoteRequest(ctx context.Context, code ircc.Code) error {
	c.logger.Debug().Str("code", string(code)).Msg("Sending IRCC remote request")

	resp := c.ircc.SendCode(ctx, code)
	if err := resp.Err(); err != nil {
		return fmt.Errorf("IRCC request failed: %w", err)
	}
	return nil
}

// RequestAccess pairs with the TV. An empty code (or RQST) makes the TV
// display a new one.
func (c *BraviaClient) RequestAccess(ctx context.Context, accessCode string) access.Result {
	auth := access.NewAuthenticator(sonynet.SonyURL(c.deviceURL, scalarweb.ServiceAccessControl),
		access.WithRegistrar(c.ircc))
	return auth.RequestAccess(ctx, c.http, accessCode)
}

// RenewAccess refreshes an existing pairing
func (c *BraviaClient) RenewAccess(ctx context.Context) access.Result {
	auth := access.NewAuthenticator(sonynet.SonyURL(c.deviceURL, scalarweb.ServiceAccessControl),
		access.WithRegistrar(c.ircc))
	return auth.RegisterRenewal(ctx, c.http)
}

// ServiceProtocols returns the services the TV offers. Seeded services are
// returned as is; otherwise the guide service is asked.
func (c *BraviaClient) ServiceProtocols(ctx context.Context) ([]scalarweb.ServiceProtocol, error) {
	if len(c.known) > 0 {
		return c.known, nil
	}

	guide, err := c.factory.Transport(ctx, scalarweb.ServiceGuide, transport.ProtocolHTTP)
	if err != nil {
		return nil, err
	}
	defer guide.Close()

	res := transport.ExecuteScalar(ctx, guide,
		scalarweb.NewRequest(1, scalarweb.MethodGetServiceProtocols, scalarweb.Version1_0))
	sps, err := scalarweb.DecodeServiceProtocols(res)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve service protocols: %w", err)
	}

	sort.Slice(sps, func(i, j int) bool { return sps[i].Name < sps[j].Name })
	return sps, nil
}

// Service returns the named service, creating it on first use
func (c *BraviaClient) Service(ctx context.Context, name string) (*Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if s, ok := c.services[name]; ok {
		return s, nil
	}

	api := c.supportedAPI(ctx, name)
	s, err := NewService(ctx, c.factory, api)
	if err != nil {
		return nil, err
	}

	c.logger.Info().Str("service", name).Str("protocol", string(s.Transport().ProtocolType())).Msg("Service ready")
	c.services[name] = s
	return s, nil
}

// Call executes method on service, at version when given
func (c *BraviaClient) Call(ctx context.Context, service, method, version string, params ...any) *scalarweb.Result {
	s, err := c.Service(ctx, service)
	if err != nil {
		return scalarweb.ErrorResult(http.StatusServiceUnavailable, err.Error())
	}
	return s.ExecuteSpecific(ctx, method, version, params...)
}

// supportedAPI asks the guide for the service's API. Devices that don't
// answer getSupportedApiInfo are probed with getVersions/getMethodTypes.
func (c *BraviaClient) supportedAPI(ctx context.Context, name string) scalarweb.SupportedAPI {
	guide, err := c.factory.Transport(ctx, scalarweb.ServiceGuide, transport.ProtocolHTTP)
	if err == nil {
		defer guide.Close()

		res := transport.ExecuteScalar(ctx, guide, scalarweb.NewRequest(1, scalarweb.MethodGetSupportedAPIInfo,
			scalarweb.Version1_0, scalarweb.ServicesParam{Services: []string{name}}))
		apis, err := scalarweb.DecodeResults[scalarweb.SupportedAPI](res)
		if err == nil {
			for _, api := range apis {
				if strings.EqualFold(api.Service, name) {
					return c.withKnownProtocols(api)
				}
			}
		}
		c.logger.Trace().Err(err).Str("service", name).Msg("No supported api info")
	}

	return c.withKnownProtocols(c.probeAPI(ctx, name))
}

// withKnownProtocols fills in the service protocols from the seeded list
// when the device left them out
func (c *BraviaClient) withKnownProtocols(api scalarweb.SupportedAPI) scalarweb.SupportedAPI {
	if len(api.Protocols) > 0 {
		return api
	}
	for _, sp := range c.known {
		if strings.EqualFold(sp.Name, api.Service) {
			api.Protocols = sp.Protocols
		}
	}
	return api
}

func (c *BraviaClient) probeAPI(ctx context.Context, name string) scalarweb.SupportedAPI {
	api := scalarweb.SupportedAPI{Service: name}

	t, err := c.factory.Transport(ctx, name, transport.ProtocolHTTP)
	if err != nil {
		return api
	}
	probe, err := NewService(ctx, nil, api, WithTransport(t))
	if err != nil {
		t.Close()
		return api
	}
	defer probe.Close()

	versions := map[string][]string{}
	var order []string
	for _, m := range probe.Methods(ctx) {
		if _, ok := versions[m.Name]; !ok {
			order = append(order, m.Name)
		}
		versions[m.Name] = append(versions[m.Name], m.Version)
	}
	for _, n := range order {
		info := scalarweb.APIInfo{Name: n}
		for _, v := range versions[n] {
			info.Versions = append(info.Versions, scalarweb.APIVersion{Version: v})
		}
		api.APIs = append(api.APIs, info)
	}
	api.Protocols = []string{string(t.ProtocolType())}
	return api
}

// Close closes every service and the shared HTTP transport
func (c *BraviaClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	services := c.services
	c.services = map[string]*Service{}
	c.mu.Unlock()

	for name, s := range services {
		if err := s.Close(); err != nil {
			c.logger.Debug().Err(err).Str("service", name).Msg("Failed to close service")
		}
	}
	return c.http.Close()
}
