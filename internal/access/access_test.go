package access_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sonyhub/internal/access"
	"sonyhub/internal/sonynet"
	"sonyhub/internal/transport"
)

func newTransport(t *testing.T, url string) *transport.HTTPTransport {
	t.Helper()
	tr, err := transport.NewHTTPTransport(url)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

// actRegisterServer answers actRegister with a fixed status and body
func actRegisterServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeRegistrar records the registration types it is asked for
type fakeRegistrar struct {
	mu       sync.Mutex
	url      string
	order    []string
	statuses map[string]int
	calls    []string
}

func (f *fakeRegistrar) RegisterURL() string         { return f.url }
func (f *fakeRegistrar) RegistrationOrder() []string { return f.order }

func (f *fakeRegistrar) Register(_ context.Context, registrationType, _ string) *sonynet.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, registrationType)
	status, ok := f.statuses[registrationType]
	if !ok {
		status = http.StatusOK
	}
	return sonynet.NewResponse(status, http.StatusText(status))
}

func TestRequestAccess(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		status int
		body   string
		code   string
		want   access.Result
	}{
		{"accepted", http.StatusOK, `{"id":1,"result":[]}`, "1234", access.OK},
		{"code requested", http.StatusUnauthorized, "", "", access.Pending},
		{"request keyword", http.StatusUnauthorized, "", "rqst", access.Pending},
		{"wrong code", http.StatusUnauthorized, "", "9999", access.NotAccepted},
		{"display off", http.StatusOK, `{"id":1,"error":[40005,"Display Is Turned off"]}`, "", access.DisplayOff},
		{"home menu", http.StatusServiceUnavailable, "", "", access.HomeMenu},
		{"already registered", http.StatusOK, `{"id":1,"error":[3,"Illegal Argument"]}`, "", access.OK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := actRegisterServer(t, tc.status, tc.body)
			tr := newTransport(t, srv.URL+"/sony/accessControl")
			a := access.NewAuthenticator(srv.URL + "/sony/accessControl")

			assert.Equal(t, tc.want, a.RequestAccess(ctx, tr, tc.code))
		})
	}

	t.Run("unexpected status is reported raw", func(t *testing.T) {
		srv := actRegisterServer(t, http.StatusTeapot, "short and stout")
		tr := newTransport(t, srv.URL+"/sony/accessControl")
		a := access.NewAuthenticator(srv.URL + "/sony/accessControl")

		res := a.RequestAccess(ctx, tr, "")
		assert.Equal(t, access.CodeOther, res.Code)
		assert.Equal(t, "418 - short and stout", res.Message)
	})

	t.Run("headers stay on the transport", func(t *testing.T) {
		srv := actRegisterServer(t, http.StatusOK, `{"id":1,"result":[]}`)
		tr := newTransport(t, srv.URL+"/sony/accessControl")
		access.NewAuthenticator(srv.URL+"/sony/accessControl").RequestAccess(ctx, tr, "1234")

		assert.Contains(t, tr.Options(), transport.Option(transport.NewHeader(sonynet.HeaderAccessCode, "1234")))
		assert.Contains(t, tr.Options(), transport.Option(transport.NewHeader(sonynet.HeaderDeviceID, sonynet.DeviceID)))
	})
}

func TestRequestAccessIRCCFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("forbidden falls back to ircc", func(t *testing.T) {
		srv := actRegisterServer(t, http.StatusForbidden, "")
		tr := newTransport(t, srv.URL+"/sony/accessControl")
		reg := &fakeRegistrar{url: "http://tv/register", order: []string{"initial", "new"}}

		a := access.NewAuthenticator(srv.URL+"/sony/accessControl", access.WithRegistrar(reg))
		assert.Equal(t, access.OK, a.RequestAccess(ctx, tr, "1234"))
		assert.Equal(t, []string{"initial"}, reg.calls)
	})

	t.Run("bad request tries the other type", func(t *testing.T) {
		srv := actRegisterServer(t, http.StatusOK, `{"id":1,"error":[12,"Not Implemented"]}`)
		tr := newTransport(t, srv.URL+"/sony/accessControl")
		reg := &fakeRegistrar{
			url:      "http://tv/register",
			order:    []string{"new", "initial"},
			statuses: map[string]int{"new": http.StatusBadRequest, "initial": http.StatusUnauthorized},
		}

		a := access.NewAuthenticator(srv.URL+"/sony/accessControl", access.WithRegistrar(reg))
		assert.Equal(t, access.Pending, a.RequestAccess(ctx, tr, ""))
		assert.Equal(t, []string{"new", "initial"}, reg.calls)
	})
}

func TestRegisterRenewal(t *testing.T) {
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		srv := actRegisterServer(t, http.StatusOK, `{"id":1,"result":[]}`)
		tr := newTransport(t, srv.URL+"/sony/accessControl")
		assert.Equal(t, access.OK, access.NewAuthenticator(srv.URL+"/sony/accessControl").RegisterRenewal(ctx, tr))
	})

	t.Run("needs pairing without ircc", func(t *testing.T) {
		srv := actRegisterServer(t, http.StatusUnauthorized, "")
		tr := newTransport(t, srv.URL+"/sony/accessControl")
		assert.Equal(t, access.NeedsPairing, access.NewAuthenticator(srv.URL+"/sony/accessControl").RegisterRenewal(ctx, tr))
	})

	t.Run("renews through ircc", func(t *testing.T) {
		srv := actRegisterServer(t, http.StatusUnauthorized, "")
		tr := newTransport(t, srv.URL+"/sony/accessControl")
		reg := &fakeRegistrar{url: "http://tv/register"}

		a := access.NewAuthenticator(srv.URL+"/sony/accessControl", access.WithRegistrar(reg))
		assert.Equal(t, access.OK, a.RegisterRenewal(ctx, tr))
		assert.Equal(t, []string{"renewal"}, reg.calls)
	})
}

func TestChecker(t *testing.T) {
	ctx := context.Background()
	tr := newTransport(t, "http://tv.local/sony/system")

	t.Run("header wins first and is removed afterwards", func(t *testing.T) {
		var sawHeader bool
		c := access.NewChecker(tr, "0000")
		res := c.Check(ctx, func(context.Context) access.Result {
			for _, o := range tr.Options() {
				if h, ok := o.(transport.Header); ok && h.Name == sonynet.HeaderAccessCode {
					sawHeader = true
				}
			}
			return access.OK
		})
		assert.Equal(t, access.OKHeader, res)
		assert.True(t, sawHeader)
		assert.NotContains(t, tr.Options(), transport.Option(transport.NewHeader(sonynet.HeaderAccessCode, "0000")))
	})

	t.Run("falls back to cookie", func(t *testing.T) {
		calls := 0
		res := access.NewChecker(tr, "0000").Check(ctx, func(context.Context) access.Result {
			calls++
			if calls == 1 {
				return access.NeedsPairing
			}
			return access.OK
		})
		assert.Equal(t, access.OKCookie, res)
	})

	t.Run("request keyword skips the header", func(t *testing.T) {
		calls := 0
		res := access.NewChecker(tr, access.RequestCode).Check(ctx, func(context.Context) access.Result {
			calls++
			return access.Pending
		})
		assert.Equal(t, access.Pending, res)
		assert.Equal(t, 1, calls)
	})
}
