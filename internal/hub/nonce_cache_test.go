package hub_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"sonyhub/internal/device"
	"sonyhub/internal/hub"
)

func TestNonce(t *testing.T) {
	t.Run("generated nonces validate", func(t *testing.T) {
		a, b := hub.GenerateNonce(), hub.GenerateNonce()
		assert.True(t, hub.ValidateNonce(a), a)
		assert.NotEqual(t, a, b)
	})

	tests := []struct {
		nonce string
		valid bool
	}{
		{"1691234567890-a1b2c3d4", true},
		{"1691234567890-A1B2C3D4", true},
		{"", false},
		{"12345-a1b2c3d4", false},
		{"1691234567890-a1b2c3", false},
		{"1691234567890-a1b2c3dz", false},
		{"1691234567890a1b2c3d4", false},
		{"16912345678x0-a1b2c3d4", false},
		{"1691234567890-a1b2-3d4", false},
	}
	for _, tt := range tests {
		t.Run(tt.nonce, func(t *testing.T) {
			assert.Equal(t, tt.valid, hub.ValidateNonce(tt.nonce))
		})
	}
}

func TestNonceCache(t *testing.T) {
	t.Run("store and lookup per device", func(t *testing.T) {
		nc := hub.NewNonceCache(0, 0)
		defer nc.Shutdown()

		resp := device.Succeeded("ok")
		nc.Store("tv", "n1", resp)

		got, ok := nc.Lookup("tv", "n1")
		assert.True(t, ok)
		assert.Same(t, resp, got)

		_, ok = nc.Lookup("radio", "n1")
		assert.False(t, ok)
		assert.Equal(t, 1, nc.Count("tv"))
	})

	t.Run("empty nonce ignored", func(t *testing.T) {
		nc := hub.NewNonceCache(0, 0)
		defer nc.Shutdown()

		nc.Store("tv", "", device.Succeeded(nil))
		_, ok := nc.Lookup("tv", "")
		assert.False(t, ok)
		assert.Equal(t, 0, nc.Count("tv"))
	})

	t.Run("bounded per device", func(t *testing.T) {
		nc := hub.NewNonceCache(2, 0)
		defer nc.Shutdown()

		nc.Store("tv", "n1", device.Succeeded(1))
		nc.Store("tv", "n2", device.Succeeded(2))
		nc.Store("tv", "n3", device.Succeeded(3))

		assert.Equal(t, 2, nc.Count("tv"))
		_, ok := nc.Lookup("tv", "n1")
		assert.False(t, ok)
	})

	t.Run("expired", func(t *testing.T) {
		nc := hub.NewNonceCache(0, 10*time.Millisecond)
		defer nc.Shutdown()

		nc.Store("tv", "n1", device.Succeeded(nil))
		time.Sleep(20 * time.Millisecond)
		_, ok := nc.Lookup("tv", "n1")
		assert.False(t, ok)
	})

	t.Run("clear and stats", func(t *testing.T) {
		nc := hub.NewNonceCache(0, 0)
		defer nc.Shutdown()

		nc.Store("tv", "n1", device.Succeeded(nil))
		nc.Store("bd", "n1", device.Succeeded(nil))
		assert.Equal(t, 2, nc.Stats()["total_nonces"])

		nc.ClearDevice("tv")
		assert.Equal(t, 0, nc.Count("tv"))
		assert.Equal(t, 1, nc.Stats()["total_devices"])
	})
}
