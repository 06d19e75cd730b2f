package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"sonyhub/internal/logger"
	"sonyhub/internal/scalarweb"
	"sonyhub/internal/sonynet"
)

// DefaultWebSocketPort is where Sony devices accept scalar websocket sessions
const DefaultWebSocketPort = 10000

// ErrWebSocketUnavailable is returned when the factory has no dialer
var ErrWebSocketUnavailable = errors.New("websocket transport unavailable")

// Factory builds transports for the services of one device
type Factory struct {
	baseURL *url.URL
	dialer  *websocket.Dialer
	wsPort  int
	httpOpt []HTTPOption
	wsOpt   []WebSocketOption
	options []Option
	logger  zerolog.Logger
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithWebSocketDialer enables websocket transports. Without a dialer every
// websocket request falls back to HTTP.
func WithWebSocketDialer(d *websocket.Dialer) FactoryOption {
	return func(f *Factory) {
		f.dialer = d
	}
}

// WithWebSocketPort overrides the websocket port
func WithWebSocketPort(port int) FactoryOption {
	return func(f *Factory) {
		f.wsPort = port
	}
}

// WithHTTPOptions applies opts to every HTTP transport built
func WithHTTPOptions(opts ...HTTPOption) FactoryOption {
	return func(f *Factory) {
		f.httpOpt = append(f.httpOpt, opts...)
	}
}

// WithWebSocketOptions applies opts to every websocket transport built
func WithWebSocketOptions(opts ...WebSocketOption) FactoryOption {
	return func(f *Factory) {
		f.wsOpt = append(f.wsOpt, opts...)
	}
}

// WithTransportOptions sets persistent options on every transport the
// factory creates
func WithTransportOptions(opts ...Option) FactoryOption {
	return func(f *Factory) {
		f.options = append(f.options, opts...)
	}
}

// NewFactory creates a factory for the device whose scalar root is baseURL,
// typically http://host/sony
func NewFactory(baseURL string, opts ...FactoryOption) (*Factory, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", baseURL)
	}

	f := &Factory{
		baseURL: u,
		wsPort:  DefaultWebSocketPort,
		logger:  logger.Component("transport_factory"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// TransportFor picks the best transport for the protocols service advertises.
// Websocket is preferred and HTTP is the fallback.
func (f *Factory) TransportFor(ctx context.Context, service scalarweb.ServiceProtocol) (Transport, error) {
	switch {
	case service.HasWebSocket():
		return f.Transport(ctx, service.Name, ProtocolAuto)
	case service.HasHTTP():
		return f.Transport(ctx, service.Name, ProtocolHTTP)
	default:
		return f.Transport(ctx, service.Name, ProtocolAuto)
	}
}

// Transport builds a transport for service using protocol. Auto tries a
// websocket first and falls back to HTTP on any failure.
func (f *Factory) Transport(ctx context.Context, service string, protocol Protocol) (Transport, error) {
	switch protocol {
	case ProtocolHTTP:
		return f.httpTransport(service)
	case ProtocolWebSocket:
		return f.webSocketTransport(ctx, service)
	case ProtocolAuto:
		t, err := f.webSocketTransport(ctx, service)
		if err == nil {
			return t, nil
		}
		f.logger.Debug().Err(err).Str("service", service).Msg("Falling back to HTTP transport")
		return f.httpTransport(service)
	default:
		return nil, fmt.Errorf("unknown protocol %q for service %s", protocol, service)
	}
}

// HTTPURL returns the scalar endpoint of service
func (f *Factory) HTTPURL(service string) string {
	return sonynet.JoinURL(f.baseURL.String(), service)
}

// WebSocketURL returns the websocket endpoint of service
func (f *Factory) WebSocketURL(service string) string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(f.baseURL.Hostname(), strconv.Itoa(f.wsPort)),
		Path:   strings.TrimSuffix(f.baseURL.Path, "/") + "/" + strings.TrimPrefix(service, "/"),
	}
	return u.String()
}

func (f *Factory) httpTransport(service string) (Transport, error) {
	t, err := NewHTTPTransport(f.HTTPURL(service), f.httpOpt...)
	if err != nil {
		return nil, err
	}
	f.applyOptions(t)
	return t, nil
}

func (f *Factory) webSocketTransport(ctx context.Context, service string) (Transport, error) {
	if f.dialer == nil {
		return nil, ErrWebSocketUnavailable
	}
	opts := append([]WebSocketOption{WithDialer(f.dialer)}, f.wsOpt...)
	t, err := NewWebSocketTransport(ctx, f.WebSocketURL(service), opts...)
	if err != nil {
		return nil, err
	}
	f.applyOptions(t)
	return t, nil
}

func (f *Factory) applyOptions(t Transport) {
	for _, opt := range f.options {
		t.SetOption(opt)
	}
}
