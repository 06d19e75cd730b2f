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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"sonyhub/internal/logger"
	"sonyhub/internal/scalarweb"
	"sonyhub/internal/sonynet"
)

const (
	contentTypeJSON = "application/json"
	contentTypeXML  = "text/xml; charset=utf-8"

	defaultHTTPTimeout = 30 * time.Second
)

// HTTPTransport sends each request as a blocking HTTP exchange. The future
// it returns is always already resolved.
type HTTPTransport struct {
	base

	id     string
	client *http.Client
	auth   *AuthFilter
	logger zerolog.Logger
}

// HTTPOption configures an HTTPTransport
type HTTPOption func(*httpConfig)

type httpConfig struct {
	client     *http.Client
	authClient *http.Client
	noAuth     bool
}

// WithHTTPClient uses c as the template for the transport's client. Its
// round tripper is wrapped, never mutated.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(cfg *httpConfig) {
		cfg.client = c
	}
}

// WithAuthClient sets the separate client used for cookie registration
func WithAuthClient(c *http.Client) HTTPOption {
	return func(cfg *httpConfig) {
		cfg.authClient = c
	}
}

// WithoutAuthFilter disables cookie handling entirely
func WithoutAuthFilter() HTTPOption {
	return func(cfg *httpConfig) {
		cfg.noAuth = true
	}
}

// NewHTTPTransport creates a transport rooted at baseURL. Auto-auth starts
// disabled as a persistent option.
func NewHTTPTransport(baseURL string, opts ...HTTPOption) (*HTTPTransport, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	cfg := &httpConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	client := &http.Client{Timeout: defaultHTTPTimeout}
	if cfg.client != nil {
		copied := *cfg.client
		client = &copied
	}

	t := &HTTPTransport{
		base:   base{protocol: ProtocolHTTP, baseURL: u},
		id:     uuid.NewString(),
		client: client,
	}
	t.logger = logger.Component("http_transport").With().
		Str("transport_id", t.id).
		Str("url", baseURL).
		Logger()

	if !cfg.noAuth {
		t.auth = NewAuthFilter(baseURL, cfg.authClient)
		next := client.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		client.Transport = &authRoundTripper{next: next, filter: t.auth}
	}

	t.SetOption(AutoAuth(false))
	return t, nil
}

// AuthFilter returns the cookie filter, or nil when disabled
func (t *HTTPTransport) AuthFilter() *AuthFilter {
	return t.auth
}

// callScope is the option set resolved for one Execute call. Per-call
// overrides live here and never touch the persistent options.
type callScope struct {
	method   Method
	autoAuth bool
	headers  []Header
}

func (t *HTTPTransport) scope(perCall []Option) callScope {
	s := callScope{method: MethodPostJSON}
	if m, ok := firstOf[Method](&t.base, perCall); ok {
		s.method = m
	}
	if a, ok := firstOf[AutoAuth](&t.base, perCall); ok {
		s.autoAuth = bool(a)
	}

	// per-call headers shadow persistent headers of the same name
	shadowed := map[string]bool{}
	for _, o := range perCall {
		if h, ok := o.(Header); ok {
			s.headers = append(s.headers, h)
			shadowed[http.CanonicalHeaderKey(h.Name)] = true
		}
	}
	for _, o := range t.Options() {
		if h, ok := o.(Header); ok && !shadowed[http.CanonicalHeaderKey(h.Name)] {
			s.headers = append(s.headers, h)
		}
	}
	return s
}

// Execute performs the request on the calling goroutine
func (t *HTTPTransport) Execute(ctx context.Context, payload Payload, opts ...Option) *Future {
	s := t.scope(opts)

	switch p := payload.(type) {
	case HTTPPayload:
		switch s.method {
		case MethodGet:
			return Completed(HTTPResult{Response: t.send(ctx, s, http.MethodGet, p.URL, nil, "")})
		case MethodDelete:
			return Completed(HTTPResult{Response: t.send(ctx, s, http.MethodDelete, p.URL, nil, "")})
		case MethodPostXML:
			return Completed(HTTPResult{Response: t.send(ctx, s, http.MethodPost, p.URL, bodyOf(p), contentTypeXML)})
		case MethodPostJSON:
			return Completed(HTTPResult{Response: t.send(ctx, s, http.MethodPost, p.URL, bodyOf(p), contentTypeJSON)})
		}
		return Completed(HTTPResult{Response: t.internalError("unsupported method %q", s.method)})

	case ScalarPayload:
		if s.method != MethodPostJSON {
			return Completed(ScalarResult{Result: scalarweb.ResultFromResponse(
				t.internalError("scalar requests must be posted as JSON, not %q", s.method))})
		}
		if p.Request == nil {
			return Completed(ScalarResult{Result: scalarweb.ResultFromResponse(t.internalError("scalar payload has no request"))})
		}
		return Completed(ScalarResult{Result: t.postScalar(ctx, s, p.Request)})
	}

	return Completed(HTTPResult{Response: t.internalError("unsupported payload %T", payload)})
}

func (t *HTTPTransport) postScalar(ctx context.Context, s callScope, req *scalarweb.Request) *scalarweb.Result {
	body, err := json.Marshal(req)
	if err != nil {
		return scalarweb.ResultFromResponse(t.internalError("failed to encode %s: %v", req, err))
	}

	resp := t.send(ctx, s, http.MethodPost, t.baseURL.String(), body, contentTypeJSON)
	if !resp.OK() {
		return scalarweb.ResultFromResponse(resp)
	}

	var result scalarweb.Result
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		t.logger.Debug().Err(err).Str("body", resp.Content()).Msg("Failed to decode scalar result")
		return scalarweb.ErrorResult(http.StatusInternalServerError,
			fmt.Sprintf("failed to decode response to %s: %v", req, err))
	}
	return &result
}

// send performs one exchange. Failures are folded into a synthetic 500.
func (t *HTTPTransport) send(ctx context.Context, s callScope, method, rawURL string, body []byte, contentType string) *sonynet.Response {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(withAutoAuth(ctx, s.autoAuth), method, rawURL, reader)
	if err != nil {
		return t.internalError("failed to create request for %s: %v", rawURL, err)
	}

	req.Header.Set("User-Agent", sonynet.UserAgent)
	req.Header.Set(sonynet.HeaderDeviceInfo, sonynet.DeviceName())
	req.Header.Set(sonynet.HeaderDeviceID, sonynet.DeviceID)
	req.Close = true
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	seen := map[string]bool{}
	for _, h := range s.headers {
		key := http.CanonicalHeaderKey(h.Name)
		if seen[key] {
			req.Header.Add(key, h.Value)
		} else {
			req.Header.Set(key, h.Value)
			seen[key] = true
		}
	}

	t.logger.Debug().
		Str("method", method).
		Str("target", rawURL).
		Bool("auto_auth", s.autoAuth).
		Msg("Sending HTTP request")

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug().Err(err).Str("target", rawURL).Msg("HTTP request failed")
		return sonynet.NewResponse(http.StatusInternalServerError, err.Error())
	}

	out, err := sonynet.ReadResponse(resp)
	if err != nil {
		return sonynet.NewResponse(http.StatusInternalServerError, err.Error())
	}

	t.logger.Debug().
		Int("status", out.StatusCode).
		Str("target", rawURL).
		Msg("HTTP request completed")

	return out
}

func (t *HTTPTransport) internalError(format string, args ...any) *sonynet.Response {
	msg := fmt.Sprintf(format, args...)
	t.logger.Error().Msg(msg)
	return sonynet.NewResponse(http.StatusInternalServerError, msg)
}

// Close releases idle connections
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) String() string {
	return fmt.Sprintf("HTTPTransport(%s)", strings.TrimRight(t.baseURL.String(), "/"))
}

func bodyOf(p HTTPPayload) []byte {
	if p.Body == nil {
		return nil
	}
	return []byte(*p.Body)
}
