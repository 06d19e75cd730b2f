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

package transport

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"sonyhub/internal/expiring"
	"sonyhub/internal/logger"
	"sonyhub/internal/scalarweb"
	"sonyhub/internal/sonynet"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestExpiry  = 30 * time.Second
	DefaultPingInterval   = 5 * time.Second
)

// ErrNoWebSocketEndpoint means the device answered the upgrade with a 404
var ErrNoWebSocketEndpoint = errors.New("no websocket listening for specific service")

const noSessionMessage = "No session established yet - wait for it to be connected"

// State is the connection state of a WebSocketTransport
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// WebSocketOption configures a WebSocketTransport
type WebSocketOption func(*wsConfig)

type wsConfig struct {
	dialer         *websocket.Dialer
	connectTimeout time.Duration
	requestExpiry  time.Duration
	pingInterval   time.Duration
}

// WithDialer sets the websocket dialer
func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(c *wsConfig) {
		c.dialer = d
	}
}

// WithConnectTimeout bounds the initial handshake
func WithConnectTimeout(d time.Duration) WebSocketOption {
	return func(c *wsConfig) {
		c.connectTimeout = d
	}
}

// WithRequestExpiry sets how long a request may wait for its response
func WithRequestExpiry(d time.Duration) WebSocketOption {
	return func(c *wsConfig) {
		c.requestExpiry = d
	}
}

// WithPingInterval sets the keepalive period. Zero disables pinging.
func WithPingInterval(d time.Duration) WebSocketOption {
	return func(c *wsConfig) {
		c.pingInterval = d
	}
}

// WebSocketTransport multiplexes ScalarWeb requests over one websocket and
// matches replies to requests by id. Messages without an id are events and
// go to the listeners.
type WebSocketTransport struct {
	base

	id     string
	logger zerolog.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	state State

	// gorilla allows a single concurrent writer
	writeMu sync.Mutex

	futures *expiring.Map[int, *Future]

	stopPing  chan struct{}
	pingDone  chan struct{}
	closeOnce sync.Once
}

// NewWebSocketTransport connects to rawURL and blocks until the session is
// up or the connect timeout passes. No transport is returned on failure.
func NewWebSocketTransport(ctx context.Context, rawURL string, opts ...WebSocketOption) (*WebSocketTransport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url %q: %w", rawURL, err)
	}

	cfg := &wsConfig{
		connectTimeout: DefaultConnectTimeout,
		requestExpiry:  DefaultRequestExpiry,
		pingInterval:   DefaultPingInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.dialer == nil {
		d := *websocket.DefaultDialer
		cfg.dialer = &d
	}

	t := &WebSocketTransport{
		base:     base{protocol: ProtocolWebSocket, baseURL: u},
		id:       uuid.NewString(),
		futures:  expiring.New[int, *Future](cfg.requestExpiry),
		stopPing: make(chan struct{}),
		pingDone: make(chan struct{}),
	}
	t.logger = logger.Component("websocket_transport").With().
		Str("transport_id", t.id).
		Str("url", rawURL).
		Logger()
	t.futures.AddExpireListener(t.onExpire)

	if err := t.connect(ctx, cfg); err != nil {
		t.futures.Close()
		return nil, err
	}

	if cfg.pingInterval > 0 {
		go t.ping(cfg.pingInterval)
	} else {
		close(t.pingDone)
	}

	return t, nil
}

func (t *WebSocketTransport) connect(ctx context.Context, cfg *wsConfig) error {
	t.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, cfg.connectTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("User-Agent", sonynet.UserAgent)
	header.Set(sonynet.HeaderDeviceID, sonynet.DeviceID)

	t.logger.Debug().Msg("Connecting websocket")
	conn, resp, err := cfg.dialer.DialContext(dialCtx, t.baseURL.String(), header)
	if err != nil {
		t.setState(StateDisconnected)
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			t.logger.Debug().Msg("No websocket listening for specific service")
			return fmt.Errorf("%w: %s", ErrNoWebSocketEndpoint, t.baseURL)
		}
		t.logger.Debug().Err(err).Msg("Websocket connect failed")
		return fmt.Errorf("failed to connect websocket %s: %w", t.baseURL, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.state = StateConnected
	t.mu.Unlock()

	t.logger.Debug().Msg("Websocket connected")
	go t.readLoop(conn)
	return nil
}

// State returns the current connection state
func (t *WebSocketTransport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *WebSocketTransport) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateClosed {
		t.state = s
	}
}

func (t *WebSocketTransport) session() *websocket.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// Pending reports how many requests are waiting for a response
func (t *WebSocketTransport) Pending() int {
	return t.futures.Len()
}

// Execute sends a scalar request and returns without waiting for the reply.
// A request id already in flight is overwritten and its earlier future is
// left to its caller's own timeout.
func (t *WebSocketTransport) Execute(ctx context.Context, payload Payload, opts ...Option) *Future {
	p, ok := payload.(ScalarPayload)
	if !ok || p.Request == nil {
		msg := fmt.Sprintf("websocket transport only accepts scalar requests, got %T", payload)
		t.logger.Error().Msg(msg)
		return Completed(ScalarResult{Result: scalarweb.ErrorResult(http.StatusInternalServerError, msg)})
	}

	conn := t.session()
	if conn == nil {
		return Completed(ScalarResult{Result: scalarweb.ErrorResult(http.StatusInternalServerError, noSessionMessage)})
	}

	data, err := json.Marshal(p.Request)
	if err != nil {
		return Completed(ScalarResult{Result: scalarweb.ErrorResult(http.StatusInternalServerError,
			fmt.Sprintf("failed to encode %s: %v", p.Request, err))})
	}

	id := p.Request.ID
	f := newFuture()
	t.futures.Put(id, f)

	t.logger.Debug().Int("id", id).Str("method", p.Request.Method).Msg("Sending websocket request")

	t.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	conn.SetWriteDeadline(time.Time{})
	t.writeMu.Unlock()

	if err != nil {
		t.futures.Remove(id)
		t.logger.Debug().Err(err).Int("id", id).Msg("Websocket write failed")
		f.complete(ScalarResult{Result: scalarweb.ErrorResult(http.StatusInternalServerError, err.Error())})
	}

	return f
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.onDisconnect(conn, err)
			return
		}
		t.onMessage(data)
	}
}

func (t *WebSocketTransport) onMessage(data []byte) {
	var probe struct {
		ID *int `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		t.logger.Debug().Err(err).Str("message", string(data)).Msg("Dropping malformed websocket message")
		return
	}

	if probe.ID != nil {
		var result scalarweb.Result
		if err := json.Unmarshal(data, &result); err != nil {
			t.logger.Debug().Err(err).Str("message", string(data)).Msg("Dropping malformed websocket result")
			return
		}

		f, ok := t.futures.Remove(*probe.ID)
		if !ok {
			t.logger.Debug().Int("id", *probe.ID).Msg("Waiting command wasn't found - ignored")
			return
		}
		f.complete(ScalarResult{Result: &result})
		return
	}

	var event scalarweb.Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.logger.Debug().Err(err).Str("message", string(data)).Msg("Dropping malformed websocket event")
		return
	}
	t.logger.Debug().Str("method", event.Method).Msg("Websocket event received")
	t.fireEvent(&event)
}

func (t *WebSocketTransport) onDisconnect(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
		if t.state != StateClosed {
			t.state = StateDisconnected
		}
	}
	closed := t.state == StateClosed
	t.mu.Unlock()

	conn.Close()
	if closed {
		return
	}
	t.handleError(err)
}

// handleError escalates errors that are not part of normal device behaviour
func (t *WebSocketTransport) handleError(err error) {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		t.logger.Debug().Err(err).Msg("Websocket closed by device")
	case isQuietError(err):
		t.logger.Debug().Err(err).Msg("Websocket connection lost")
	default:
		t.logger.Debug().Err(err).Msg("Websocket error")
		t.fireError(err)
	}
}

// isQuietError matches the failures devices produce when they power down
// or drop idle sessions
func isQuietError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "idle timeout")
}

func (t *WebSocketTransport) onExpire(id int, f *Future) {
	err := ErrExpired
	if t.State() == StateClosed {
		err = ErrCancelled
	}
	if f.fail(err) {
		t.logger.Debug().Int("id", id).Err(err).Msg("Websocket request abandoned")
	}
}

func (t *WebSocketTransport) ping(interval time.Duration) {
	defer close(t.pingDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var counter uint32
	for {
		select {
		case <-t.stopPing:
			return
		case <-ticker.C:
			conn := t.session()
			if conn == nil {
				continue
			}
			counter++
			payload := make([]byte, 4)
			binary.BigEndian.PutUint32(payload, counter)
			if err := conn.WriteControl(websocket.PingMessage, payload, time.Now().Add(interval)); err != nil {
				t.logger.Debug().Err(err).Msg("Websocket ping failed")
			}
		}
	}
}

// Close stops the pinger, cancels every pending request and closes the
// session. It is safe to call more than once and from any goroutine,
// listener callbacks included.
func (t *WebSocketTransport) Close() error {
	var closeErr error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.state = StateClosed
		conn := t.conn
		t.conn = nil
		t.mu.Unlock()

		close(t.stopPing)
		<-t.pingDone

		t.futures.Close()

		if conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			closeErr = conn.Close()
		}
		t.logger.Debug().Msg("Websocket transport closed")
	})
	return closeErr
}

func (t *WebSocketTransport) String() string {
	return fmt.Sprintf("WebSocketTransport(%s)", t.baseURL)
}
