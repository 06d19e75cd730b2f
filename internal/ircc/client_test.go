package ircc_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sonyhub/internal/ircc"
	"sonyhub/internal/transport"
)

func newClient(t *testing.T, srv *httptest.Server, opts ...ircc.ClientOption) *ircc.Client {
	t.Helper()
	tr, err := transport.NewHTTPTransport(srv.URL + "/sony/IRCC")
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })

	c, err := ircc.NewClient(tr, srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestEnvelope(t *testing.T) {
	env := ircc.Envelope(ircc.VolumeUp)
	assert.True(t, strings.HasPrefix(env, `<?xml version="1.0" encoding="utf-8"?>`))
	assert.Contains(t, env, `<u:X_SendIRCC xmlns:u="urn:schemas-sony-com:service:IRCC:1">`)
	assert.Contains(t, env, "<IRCCCode>AAAAAQAAAAEAAAASAw==</IRCCCode>")
	assert.Equal(t, `"urn:schemas-sony-com:service:IRCC:1#X_SendIRCC"`, ircc.SOAPAction())
}

func TestSendCode(t *testing.T) {
	t.Run("posts soap to the control url", func(t *testing.T) {
		var body, action, contentType, path string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			body = string(b)
			action = r.Header.Get("SOAPACTION")
			contentType = r.Header.Get("Content-Type")
			path = r.URL.Path
		}))
		defer srv.Close()

		c := newClient(t, srv)
		assert.Equal(t, srv.URL+"/sony/IRCC", c.ControlURL())

		resp := c.SendCode(context.Background(), ircc.Mute)
		require.True(t, resp.OK())
		assert.Equal(t, "/sony/IRCC", path)
		assert.Equal(t, ircc.SOAPAction(), action)
		assert.Equal(t, "text/xml; charset=utf-8", contentType)
		assert.Contains(t, body, string(ircc.Mute))
	})

	t.Run("device errors come back as responses", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "<errorCode>401</errorCode>", http.StatusInternalServerError)
		}))
		defer srv.Close()

		resp := newClient(t, srv).SendCode(context.Background(), ircc.Home)
		assert.False(t, resp.OK())
		assert.Contains(t, resp.Content(), "401")
	})
}

func TestRegister(t *testing.T) {
	t.Run("no register url", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		resp := newClient(t, srv).Register(context.Background(), ircc.RegistrationInitial, "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("query and authorization", func(t *testing.T) {
		var query, auth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.RawQuery
			auth = r.Header.Get("Authorization")
		}))
		defer srv.Close()

		c := newClient(t, srv, ircc.WithRegisterURL(srv.URL+"/cers/api/register"))
		resp := c.Register(context.Background(), ircc.RegistrationRenewal, "1234")
		require.True(t, resp.OK())
		assert.Contains(t, query, "registrationType=renewal")
		assert.Contains(t, query, "deviceId=MediaRemote%3A00-11-22-33-44-55")
		assert.Equal(t, "Basic OjEyMzQ=", auth)
	})

	t.Run("order follows registration mode", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		assert.Equal(t, []string{"initial", "new"}, newClient(t, srv).RegistrationOrder())
		assert.Equal(t, []string{"new", "initial"},
			newClient(t, srv, ircc.WithRegistrationMode(2)).RegistrationOrder())
	})
}

func TestLookup(t *testing.T) {
	code, ok := ircc.Lookup("Volume_Up")
	require.True(t, ok)
	assert.Equal(t, ircc.VolumeUp, code)

	_, ok = ircc.Lookup("self_destruct")
	assert.False(t, ok)

	names := ircc.Names()
	assert.Contains(t, names, "hdmi1")
	assert.IsIncreasing(t, names)
}
