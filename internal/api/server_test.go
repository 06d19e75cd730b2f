package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sonyhub/internal/api"
	"sonyhub/internal/device"
)

type fakeDevice struct {
	info device.DeviceInfo
}

func (d *fakeDevice) Process(ctx context.Context, actionJSON []byte) (*device.ActionResponse, error) {
	req, err := device.ParseActionRequest(actionJSON)
	if err != nil {
		return device.Failed("%s", err), nil
	}
	return device.Succeeded(req.Action), nil
}

func (d *fakeDevice) GetDeviceInfo() device.DeviceInfo { return d.info }
func (d *fakeDevice) Close() error                      { return nil }

type fakeDevices struct {
	mu      sync.Mutex
	devices map[string]*fakeDevice
	nonces  []string
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{devices: map[string]*fakeDevice{
		"tv": {info: device.DeviceInfo{ID: "tv", Type: "bravia"}},
	}}
}

func (f *fakeDevices) GetAllDeviceInfo() []device.DeviceInfo {
	var out []device.DeviceInfo
	for _, d := range f.devices {
		out = append(out, d.info)
	}
	return out
}

func (f *fakeDevices) GetDevice(id string) (device.Device, error) {
	d, ok := f.devices[id]
	if !ok {
		return nil, fmt.Errorf("device not found: %s", id)
	}
	return d, nil
}

func (f *fakeDevices) GetDeviceEvents(id string) ([]device.Event, error) {
	if _, err := f.GetDevice(id); err != nil {
		return nil, err
	}
	return []device.Event{{Source: id, Name: "notifyPowerStatus"}}, nil
}

func (f *fakeDevices) ProcessDeviceActionWithNonce(ctx context.Context, deviceID, nonce string, actionJSON []byte) *device.ActionResponse {
	f.mu.Lock()
	f.nonces = append(f.nonces, nonce)
	f.mu.Unlock()
	d, _ := f.GetDevice(deviceID)
	resp, _ := d.Process(ctx, actionJSON)
	return resp
}

func (f *fakeDevices) NonceStats() map[string]interface{} {
	return map[string]interface{}{"total_nonces": len(f.nonces)}
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestServer(t *testing.T) {
	devices := newFakeDevices()
	h := api.NewServer(devices, api.WithHubID("hub-1")).Handler()

	t.Run("health", func(t *testing.T) {
		rec, out := do(t, h, http.MethodGet, "/api/v1/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hub-1", out["hub_id"])
		assert.Equal(t, float64(1), out["device_count"])
	})

	t.Run("list devices", func(t *testing.T) {
		rec, out := do(t, h, http.MethodGet, "/api/v1/devices", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, out["devices"], 1)
	})

	t.Run("get device", func(t *testing.T) {
		rec, out := do(t, h, http.MethodGet, "/api/v1/devices/tv", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "bravia", out["type"])

		rec, out = do(t, h, http.MethodGet, "/api/v1/devices/radio", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, true, out["error"])
	})

	t.Run("action with nonce", func(t *testing.T) {
		rec, out := do(t, h, http.MethodPost, "/api/v1/devices/tv/actions",
			`{"type":"remote","action":"home"}`, map[string]string{api.NonceHeader: "1700000000000-a1b2c3d4"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, out["success"])
		assert.Equal(t, "home", out["data"])
		assert.Contains(t, devices.nonces, "1700000000000-a1b2c3d4")
	})

	t.Run("failed action", func(t *testing.T) {
		rec, out := do(t, h, http.MethodPost, "/api/v1/devices/tv/actions", `{"type":"remote"}`, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, false, out["success"])
	})

	t.Run("invalid body", func(t *testing.T) {
		rec, _ := do(t, h, http.MethodPost, "/api/v1/devices/tv/actions", `not json`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("events", func(t *testing.T) {
		rec, out := do(t, h, http.MethodGet, "/api/v1/devices/tv/events", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, out["events"], 1)
	})

	t.Run("wrong method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/devices/tv", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

		for _, path := range []string{"/api/v1/devices", "/api/v1/devices/tv/actions", "/api/v1/devices/tv/events"} {
			req := httptest.NewRequest(http.MethodPut, path, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
		}
	})
}

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) ReloadConfig(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestReload(t *testing.T) {
	t.Run("disabled without reloader", func(t *testing.T) {
		h := api.NewServer(newFakeDevices()).Handler()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reload", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("reloads", func(t *testing.T) {
		r := &fakeReloader{}
		h := api.NewServer(newFakeDevices(), api.WithReloader(r)).Handler()
		rec, out := do(t, h, http.MethodPost, "/api/v1/reload", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, out["success"])
		assert.Equal(t, 1, r.calls)
	})

	t.Run("failure", func(t *testing.T) {
		r := &fakeReloader{err: fmt.Errorf("bad yaml")}
		h := api.NewServer(newFakeDevices(), api.WithReloader(r)).Handler()
		rec, out := do(t, h, http.MethodPost, "/api/v1/reload", "", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "bad yaml", out["message"])
	})
}

func TestAuth(t *testing.T) {
	jwtService := api.NewJWTService("secret", "sonyhub", time.Hour)
	h := api.NewServer(newFakeDevices(), api.WithJWT(jwtService)).Handler()

	t.Run("health is public", func(t *testing.T) {
		rec, _ := do(t, h, http.MethodGet, "/api/v1/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rec, _ := do(t, h, http.MethodGet, "/api/v1/devices", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("every device route is guarded", func(t *testing.T) {
		for _, r := range []struct{ method, path string }{
			{http.MethodGet, "/api/v1/devices/tv"},
			{http.MethodPost, "/api/v1/devices/tv/actions"},
			{http.MethodGet, "/api/v1/devices/tv/events"},
		} {
			rec, _ := do(t, h, r.method, r.path, `{"type":"remote","action":"power"}`, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, r.path)
		}
	})

	t.Run("not bearer", func(t *testing.T) {
		rec, _ := do(t, h, http.MethodGet, "/api/v1/devices", "", map[string]string{"Authorization": "Basic abc"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := jwtService.GenerateToken("alice")
		require.NoError(t, err)
		rec, _ := do(t, h, http.MethodGet, "/api/v1/devices", "", map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := api.NewJWTService("other", "sonyhub", time.Hour).GenerateToken("alice")
		require.NoError(t, err)
		rec, _ := do(t, h, http.MethodGet, "/api/v1/devices", "", map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := api.NewJWTService("secret", "elsewhere", time.Hour).GenerateToken("alice")
		require.NoError(t, err)
		rec, _ := do(t, h, http.MethodGet, "/api/v1/devices", "", map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestJWTService(t *testing.T) {
	j := api.NewJWTService("secret", "sonyhub", 0)

	token, err := j.GenerateToken("alice")
	require.NoError(t, err)

	claims, err := j.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "sonyhub", claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(api.DefaultTokenExpiry), claims.ExpiresAt.Time, time.Minute)

	_, err = j.GenerateToken("")
	assert.Error(t, err)

	_, err = j.ValidateToken("garbage")
	assert.Error(t, err)
}

func TestClaimsFromContext(t *testing.T) {
	j := api.NewJWTService("secret", "sonyhub", time.Hour)
	token, err := j.GenerateToken("bob")
	require.NoError(t, err)

	var subject string
	h := j.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := api.ClaimsFromContext(r.Context())
		if ok {
			subject = claims.Subject
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "bob", subject)
}
