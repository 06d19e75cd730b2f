package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"sonyhub/internal/logger"
	"sonyhub/internal/scalarweb"
)

// AuthCookieName is the cookie devices hand out after a successful actRegister
const AuthCookieName = "auth"

type storedCookie struct {
	cookie  *http.Cookie
	expires time.Time // zero means it lasts for the session
}

func (c storedCookie) expired(now time.Time) bool {
	return !c.expires.IsZero() && now.After(c.expires)
}

// AuthFilter keeps the device session cookie fresh. It inspects every
// response for new cookies and, before each request, re-registers when the
// auth cookie is gone and auto-auth is on for that call.
type AuthFilter struct {
	registerURL string
	client      *http.Client
	logger      zerolog.Logger
	now         func() time.Time

	mu      sync.Mutex
	cookies map[string]storedCookie
}

// NewAuthFilter creates a filter for a transport rooted at baseURL, for
// example http://tv/sony/system. Registration goes to the sibling
// accessControl service.
func NewAuthFilter(baseURL string, client *http.Client) *AuthFilter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	deviceURL := strings.TrimRight(baseURL, "/")
	if idx := strings.LastIndex(deviceURL, "/"); idx >= 0 {
		deviceURL = deviceURL[:idx]
	}

	return &AuthFilter{
		registerURL: deviceURL + "/" + scalarweb.ServiceAccessControl,
		client:      client,
		logger:      logger.Component("auth_filter"),
		now:         time.Now,
		cookies:     make(map[string]storedCookie),
	}
}

// RegisterURL is where the filter sends actRegister
func (f *AuthFilter) RegisterURL() string {
	return f.registerURL
}

// HasAuthCookie reports whether an unexpired auth cookie is held
func (f *AuthFilter) HasAuthCookie() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneLocked()
	_, ok := f.cookies[AuthCookieName]
	return ok
}

// OnResponse stores the cookies set by resp. Any response that sets
// cookies replaces everything held before.
func (f *AuthFilter) OnResponse(resp *http.Response) {
	fresh := resp.Cookies()
	if len(fresh) == 0 {
		return
	}

	now := f.now()
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cookies = make(map[string]storedCookie, len(fresh))
	for _, c := range fresh {
		f.cookies[c.Name] = newStoredCookie(c, now)
		if c.Name == AuthCookieName {
			f.logger.Debug().Msg("Auth cookie found and saved")
		}
	}
}

// OnRequest prunes expired cookies, re-registers once when needed and
// attaches whatever cookies remain to req
func (f *AuthFilter) OnRequest(req *http.Request, autoAuth bool) {
	f.mu.Lock()
	f.pruneLocked()
	_, authenticated := f.cookies[AuthCookieName]
	f.mu.Unlock()

	if !authenticated && autoAuth {
		f.logger.Debug().Str("url", f.registerURL).Msg("Trying to renew our authorization cookie")
		if c := f.register(req.Context()); c != nil {
			f.mu.Lock()
			f.cookies[AuthCookieName] = newStoredCookie(c, f.now())
			f.mu.Unlock()
			f.logger.Debug().Msg("Authorization cookie was renewed")
		} else {
			f.logger.Debug().Msg("No authorization cookie was returned")
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cookies {
		req.AddCookie(&http.Cookie{Name: c.cookie.Name, Value: c.cookie.Value})
	}
}

func (f *AuthFilter) pruneLocked() {
	now := f.now()
	for name, c := range f.cookies {
		if c.expired(now) {
			delete(f.cookies, name)
		}
	}
}

// register posts actRegister and returns the auth cookie it yields, if any
func (f *AuthFilter) register(ctx context.Context) *http.Cookie {
	body, err := json.Marshal(scalarweb.NewActRegister(1, scalarweb.Version1_0))
	if err != nil {
		f.logger.Error().Err(err).Msg("Failed to encode actRegister")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.registerURL, bytes.NewReader(body))
	if err != nil {
		f.logger.Debug().Err(err).Msg("Failed to create registration request")
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug().Err(err).Msg("Registration request failed")
		return nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	for _, c := range resp.Cookies() {
		if c.Name == AuthCookieName {
			return c
		}
	}
	return nil
}

func newStoredCookie(c *http.Cookie, now time.Time) storedCookie {
	sc := storedCookie{cookie: c}
	switch {
	case c.MaxAge > 0:
		sc.expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	case c.MaxAge < 0:
		sc.expires = now.Add(-time.Second)
	case !c.Expires.IsZero():
		sc.expires = c.Expires
	}
	return sc
}

type autoAuthKey struct{}

func withAutoAuth(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, autoAuthKey{}, enabled)
}

func autoAuthFrom(ctx context.Context) bool {
	enabled, _ := ctx.Value(autoAuthKey{}).(bool)
	return enabled
}

// authRoundTripper runs the filter around every exchange of the wrapped
// round tripper
type authRoundTripper struct {
	next   http.RoundTripper
	filter *AuthFilter
}

func (rt *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrip must not modify the caller's request
	out := req.Clone(req.Context())
	rt.filter.OnRequest(out, autoAuthFrom(req.Context()))

	resp, err := rt.next.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	rt.filter.OnResponse(resp)
	return resp, nil
}
