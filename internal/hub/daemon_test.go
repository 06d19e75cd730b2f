package hub_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sonyhub/internal/hub"
)

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestDaemon(t *testing.T) {
	listen := freePort(t)
	path := writeConfig(t, fmt.Sprintf(`
hub:
  id: den
  listen: %s
  token_secret: s3cret
devices:
  - id: tv
    type: bravia
    address: 10.0.0.2
`, listen))

	fleet := &fakeFleet{devices: map[string]*fakeDevice{}}
	d, err := hub.NewDaemon(path, hub.WithDeviceBuilder(hub.DeviceTypeBravia, fleet.builder))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	base := "http://" + listen + "/api/v1"
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, d.IsRunning())

	t.Run("devices need a token", func(t *testing.T) {
		resp, err := http.Get(base + "/devices")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		token, err := d.JWTService(time.Minute).GenerateToken("test")
		require.NoError(t, err)
		req, _ := http.NewRequest(http.MethodGet, base+"/devices/tv", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("reload", func(t *testing.T) {
		require.NoError(t, d.ReloadConfig(ctx))
		assert.Equal(t, 1, d.DeviceManager().GetDeviceCount())
	})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.False(t, d.IsRunning())
	assert.True(t, fleet.devices["tv"].closed)
}

func TestNewDaemonBadConfig(t *testing.T) {
	_, err := hub.NewDaemon(writeConfig(t, "devices:\n  - id: x\n"))
	assert.Error(t, err)
}
