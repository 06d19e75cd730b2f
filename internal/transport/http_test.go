package transport_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sonyhub/internal/scalarweb"
	"sonyhub/internal/sonynet"
	"sonyhub/internal/transport"
)

type recordedRequest struct {
	method string
	path   string
	header http.Header
	body   string
	cookie string
}

// recorder captures every request the device sees
type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *recorder) record(req *http.Request) recordedRequest {
	body, _ := io.ReadAll(req.Body)
	rec := recordedRequest{
		method: req.Method,
		path:   req.URL.Path,
		header: req.Header.Clone(),
		body:   string(body),
	}
	if c, err := req.Cookie(transport.AuthCookieName); err == nil {
		rec.cookie = c.Value
	}

	r.mu.Lock()
	r.requests = append(r.requests, rec)
	r.mu.Unlock()
	return rec
}

func (r *recorder) last() recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[len(r.requests)-1]
}

func TestHTTPMethods(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := rec.record(r)
		w.Write([]byte(got.method + " " + got.body))
	}))
	defer srv.Close()

	ctx := context.Background()
	tr := newTestHTTPTransport(t, srv.URL+"/sony/system")

	t.Run("get", func(t *testing.T) {
		resp := transport.ExecuteGet(ctx, tr, srv.URL+"/dial")
		require.True(t, resp.OK())
		assert.Equal(t, "GET ", resp.Content())
		assert.Equal(t, "/dial", rec.last().path)
	})

	t.Run("delete", func(t *testing.T) {
		resp := transport.ExecuteDelete(ctx, tr, srv.URL+"/apps/YouTube/run")
		require.True(t, resp.OK())
		assert.Equal(t, "DELETE ", resp.Content())
	})

	t.Run("post xml", func(t *testing.T) {
		resp := transport.ExecutePostXML(ctx, tr, srv.URL+"/ircc", "<x/>")
		require.True(t, resp.OK())
		assert.Equal(t, "POST <x/>", resp.Content())
		assert.Equal(t, "text/xml; charset=utf-8", rec.last().header.Get("Content-Type"))
	})

	t.Run("post json", func(t *testing.T) {
		resp := transport.ExecutePostJSON(ctx, tr, srv.URL+"/api", `{"a":1}`)
		require.True(t, resp.OK())
		assert.Equal(t, `POST {"a":1}`, resp.Content())
		assert.Equal(t, "application/json", rec.last().header.Get("Content-Type"))
	})

	t.Run("device headers are sent", func(t *testing.T) {
		transport.ExecuteGet(ctx, tr, srv.URL+"/")
		h := rec.last().header
		assert.Equal(t, sonynet.UserAgent, h.Get("User-Agent"))
		assert.Equal(t, sonynet.DeviceID, h.Get(sonynet.HeaderDeviceID))
		assert.Equal(t, sonynet.DeviceName(), h.Get(sonynet.HeaderDeviceInfo))
	})

	t.Run("helpers send their own verb", func(t *testing.T) {
		transport.ExecuteGet(ctx, tr, srv.URL+"/", transport.MethodPostJSON)
		assert.Equal(t, http.MethodGet, rec.last().method)

		transport.ExecuteDelete(ctx, tr, srv.URL+"/", transport.MethodGet)
		assert.Equal(t, http.MethodDelete, rec.last().method)

		transport.ExecutePostXML(ctx, tr, srv.URL+"/", "<a/>", transport.MethodDelete)
		assert.Equal(t, http.MethodPost, rec.last().method)
		assert.Equal(t, "<a/>", rec.last().body)
	})

	t.Run("method option does not persist", func(t *testing.T) {
		transport.ExecuteGet(ctx, tr, srv.URL+"/")
		for _, o := range tr.Options() {
			_, isMethod := o.(transport.Method)
			assert.False(t, isMethod)
		}
	})
}

func TestHTTPHeaders(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
	}))
	defer srv.Close()

	ctx := context.Background()
	tr := newTestHTTPTransport(t, srv.URL+"/sony/system")
	tr.SetOption(transport.NewHeader(sonynet.HeaderAccessCode, "0000"))
	tr.SetOption(transport.NewHeader("X-Extra", "persistent"))

	t.Run("persistent headers", func(t *testing.T) {
		transport.ExecuteGet(ctx, tr, srv.URL+"/")
		h := rec.last().header
		assert.Equal(t, "0000", h.Get(sonynet.HeaderAccessCode))
		assert.Equal(t, "persistent", h.Get("X-Extra"))
	})

	t.Run("per call header shadows persistent one", func(t *testing.T) {
		transport.ExecuteGet(ctx, tr, srv.URL+"/", transport.NewHeader("x-auth-psk", "1234"))
		h := rec.last().header
		assert.Equal(t, []string{"1234"}, h.Values(sonynet.HeaderAccessCode))
		assert.Equal(t, "persistent", h.Get("X-Extra"))

		transport.ExecuteGet(ctx, tr, srv.URL+"/")
		assert.Equal(t, "0000", rec.last().header.Get(sonynet.HeaderAccessCode))
	})
}

func TestHTTPFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("status codes pass through", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusForbidden)
		}))
		defer srv.Close()

		tr := newTestHTTPTransport(t, srv.URL+"/sony/system")
		resp := transport.ExecuteGet(ctx, tr, srv.URL+"/")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.False(t, resp.OK())
	})

	t.Run("network errors become 500", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		tr := newTestHTTPTransport(t, url+"/sony/system")
		resp := transport.ExecuteGet(ctx, tr, url+"/")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("scalar payload cannot be sent with get", func(t *testing.T) {
		tr := newTestHTTPTransport(t, "http://127.0.0.1:1/sony/system")
		req := scalarweb.NewRequest(1, scalarweb.MethodGetPowerStatus, scalarweb.Version1_0)
		res := transport.ExecuteScalar(ctx, tr, req, transport.MethodGet)
		assert.True(t, res.IsError())
		assert.Equal(t, scalarweb.ErrHTTP, res.DeviceErrorCode())
		assert.Equal(t, http.StatusInternalServerError, res.HTTPResponse().StatusCode)
	})
}

func TestHTTPScalar(t *testing.T) {
	ctx := context.Background()

	t.Run("posts request to base url and decodes result", func(t *testing.T) {
		var got scalarweb.Request
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/sony/system", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(`{"id":7,"result":[{"status":"active"}]}`))
		}))
		defer srv.Close()

		tr := newTestHTTPTransport(t, srv.URL+"/sony/system")
		res := transport.ExecuteScalar(ctx, tr,
			scalarweb.NewRequest(7, scalarweb.MethodGetPowerStatus, scalarweb.Version1_0))

		require.False(t, res.IsError(), res.String())
		assert.Equal(t, 7, res.ID)
		assert.Equal(t, scalarweb.MethodGetPowerStatus, got.Method)
		assert.Equal(t, "1.0", got.Version)

		var status struct {
			Status string `json:"status"`
		}
		require.NoError(t, res.Decode(&status))
		assert.Equal(t, "active", status.Status)
	})

	t.Run("device errors are kept", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":3,"error":[40005,"Display Is Turned off"]}`))
		}))
		defer srv.Close()

		tr := newTestHTTPTransport(t, srv.URL+"/sony/system")
		res := transport.ExecuteScalar(ctx, tr,
			scalarweb.NewRequest(3, scalarweb.MethodGetPowerStatus, scalarweb.Version1_0))
		assert.Equal(t, scalarweb.ErrDisplayIsOff, res.DeviceErrorCode())
		assert.Equal(t, "40005, Display Is Turned off", res.DeviceErrorDesc())
	})

	t.Run("http errors carry the status code", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		tr := newTestHTTPTransport(t, srv.URL+"/sony/system")
		res := transport.ExecuteScalar(ctx, tr,
			scalarweb.NewRequest(1, scalarweb.MethodGetPowerStatus, scalarweb.Version1_0))

		require.True(t, res.IsError())
		assert.Equal(t, scalarweb.ErrHTTP, res.DeviceErrorCode())
		assert.Contains(t, res.DeviceErrorDesc(), "404")
		assert.Equal(t, http.StatusNotFound, res.HTTPResponse().StatusCode)
	})
}

// device serves a scalar service plus accessControl, counting registrations
type device struct {
	registrations atomic.Int32
	issueCookie   bool
	rec           recorder
}

func (d *device) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sony/accessControl", func(w http.ResponseWriter, r *http.Request) {
		d.registrations.Add(1)
		var req scalarweb.Request
		json.NewDecoder(r.Body).Decode(&req)
		if req.Method != scalarweb.MethodActRegister {
			http.Error(w, "unexpected method", http.StatusBadRequest)
			return
		}
		if d.issueCookie {
			http.SetCookie(w, &http.Cookie{Name: transport.AuthCookieName, Value: "granted", MaxAge: 3600})
		}
		w.Write([]byte(`{"id":1,"result":[]}`))
	})
	mux.HandleFunc("/sony/system", func(w http.ResponseWriter, r *http.Request) {
		d.rec.record(r)
		w.Write([]byte(`{"id":1,"result":[]}`))
	})
	return mux
}

func TestAutoAuth(t *testing.T) {
	ctx := context.Background()
	req := func() *scalarweb.Request {
		return scalarweb.NewRequest(1, scalarweb.MethodGetPowerStatus, scalarweb.Version1_0)
	}

	t.Run("register url points at accessControl", func(t *testing.T) {
		f := transport.NewAuthFilter("http://tv.local/sony/system/", nil)
		assert.Equal(t, "http://tv.local/sony/accessControl", f.RegisterURL())
	})

	t.Run("disabled by default", func(t *testing.T) {
		d := &device{issueCookie: true}
		srv := httptest.NewServer(d.handler())
		defer srv.Close()

		tr := newTestHTTPTransport(t, srv.URL+"/sony/system")
		transport.ExecuteScalar(ctx, tr, req())
		assert.Equal(t, int32(0), d.registrations.Load())
		assert.False(t, tr.AuthFilter().HasAuthCookie())
	})

	t.Run("registers exactly once then reuses the cookie", func(t *testing.T) {
		d := &device{issueCookie: true}
		srv := httptest.NewServer(d.handler())
		defer srv.Close()

		tr := newTestHTTPTransport(t, srv.URL+"/sony/system")
		tr.SetOption(transport.AutoAuth(true))

		for i := 0; i < 3; i++ {
			res := transport.ExecuteScalar(ctx, tr, req())
			require.False(t, res.IsError(), res.String())
			assert.Equal(t, "granted", d.rec.last().cookie)
		}
		assert.Equal(t, int32(1), d.registrations.Load())
		assert.True(t, tr.AuthFilter().HasAuthCookie())
	})

	t.Run("per call override leaves persistent option alone", func(t *testing.T) {
		d := &device{}
		srv := httptest.NewServer(d.handler())
		defer srv.Close()

		tr := newTestHTTPTransport(t, srv.URL+"/sony/system")

		transport.ExecuteScalar(ctx, tr, req(), transport.AutoAuth(true))
		assert.Equal(t, int32(1), d.registrations.Load())
		assert.Empty(t, d.rec.last().cookie)

		transport.ExecuteScalar(ctx, tr, req())
		assert.Equal(t, int32(1), d.registrations.Load())
		assert.Contains(t, tr.Options(), transport.Option(transport.AutoAuth(false)))
	})

	t.Run("cookies from responses are stored", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.SetCookie(w, &http.Cookie{Name: transport.AuthCookieName, Value: "from-response"})
			w.Write([]byte(`{"id":1,"result":[]}`))
		}))
		defer srv.Close()

		tr := newTestHTTPTransport(t, srv.URL+"/sony/system")
		transport.ExecuteScalar(ctx, tr, req())
		assert.True(t, tr.AuthFilter().HasAuthCookie())
	})

	t.Run("registration goes through the auth client", func(t *testing.T) {
		d := &device{issueCookie: true}
		srv := httptest.NewServer(d.handler())
		defer srv.Close()

		var registrations atomic.Int32
		authClient := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			registrations.Add(1)
			return http.DefaultTransport.RoundTrip(r)
		})}

		tr := newTestHTTPTransport(t, srv.URL+"/sony/system", transport.WithAuthClient(authClient))
		res := transport.ExecuteScalar(ctx, tr, req(), transport.AutoAuth(true))
		require.False(t, res.IsError(), res.String())
		assert.Equal(t, int32(1), registrations.Load())
		assert.Equal(t, int32(1), d.registrations.Load())
		assert.Equal(t, "granted", d.rec.last().cookie)
	})

	t.Run("filter can be disabled", func(t *testing.T) {
		tr := newTestHTTPTransport(t, "http://tv.local/sony/system", transport.WithoutAuthFilter())
		assert.Nil(t, tr.AuthFilter())
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// stubTransport resolves every call with a fixed result
type stubTransport struct {
	transport.Transport
	result transport.Result
}

func (s *stubTransport) Execute(context.Context, transport.Payload, ...transport.Option) *transport.Future {
	return transport.Completed(s.result)
}

func TestExecuteHelpersFoldMismatches(t *testing.T) {
	ctx := context.Background()

	t.Run("scalar call answered with http result", func(t *testing.T) {
		tr := &stubTransport{result: transport.HTTPResult{Response: sonynet.NewResponse(http.StatusOK, "OK")}}
		res := transport.ExecuteScalar(ctx, tr, scalarweb.NewRequest(1, "x", "1.0"))
		assert.True(t, res.IsError())
		assert.Contains(t, res.DeviceErrorDesc(), "didn't return a ScalarResult")
	})

	t.Run("http call answered with scalar result", func(t *testing.T) {
		tr := &stubTransport{result: transport.ScalarResult{Result: scalarweb.EmptySuccess()}}
		resp := transport.ExecuteGet(ctx, tr, "http://tv.local/")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, resp.Reason, "didn't return an HTTPResult")
	})

	t.Run("failed future", func(t *testing.T) {
		tr := &failingTransport{}
		res := transport.ExecuteScalar(ctx, tr, scalarweb.NewRequest(1, "x", "1.0"))
		assert.Contains(t, res.DeviceErrorDesc(), "threw an exception")
	})
}

type failingTransport struct {
	transport.Transport
}

func (failingTransport) Execute(context.Context, transport.Payload, ...transport.Option) *transport.Future {
	return transport.Failed(transport.ErrCancelled)
}
