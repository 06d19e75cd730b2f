package bravia_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sonyhub/internal/bravia"
	"sonyhub/internal/ircc"
	"sonyhub/internal/scalarweb"
	"sonyhub/internal/transport"
)

func newClient(t *testing.T, tv *fakeBravia, opts ...bravia.ClientOption) *bravia.BraviaClient {
	t.Helper()
	c, err := bravia.NewBraviaClient(tv.URL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestBraviaClientServices(t *testing.T) {
	ctx := context.Background()

	t.Run("services are created once", func(t *testing.T) {
		tv := newFakeBravia(t, systemAPI())
		c := newClient(t, tv)

		first, err := c.Service(ctx, scalarweb.ServiceSystem)
		require.NoError(t, err)
		second, err := c.Service(ctx, scalarweb.ServiceSystem)
		require.NoError(t, err)
		assert.Same(t, first, second)

		assert.Len(t, tv.callsTo(scalarweb.ServiceGuide), 1)
		assert.True(t, first.HasMethod(scalarweb.MethodGetPowerStatus))
		assert.Equal(t, transport.ProtocolHTTP, first.Transport().ProtocolType())
	})

	t.Run("services without api info are probed", func(t *testing.T) {
		tv := newFakeBravia(t)
		tv.handle = func(service string, req scalarweb.Request) any {
			if service != "legacy" {
				return nil
			}
			switch req.Method {
			case scalarweb.MethodGetVersions:
				return []any{[]string{"1.0"}}
			case scalarweb.MethodGetMethodTypes:
				return map[string]any{"results": []any{
					[]any{"getFoo", []string{}, []string{"string"}, "1.0"},
				}}
			case "getFoo":
				return []any{"bar"}
			}
			return nil
		}
		c := newClient(t, tv)

		var out string
		require.NoError(t, c.Call(ctx, "legacy", "getFoo", "").Decode(&out))
		assert.Equal(t, "bar", out)
	})

	t.Run("service protocols from the guide", func(t *testing.T) {
		tv := newFakeBravia(t, systemAPI(), audioAPI(scalarweb.ProtocolHTTP, scalarweb.ProtocolWebSocket))
		c := newClient(t, tv)

		sps, err := c.ServiceProtocols(ctx)
		require.NoError(t, err)
		require.Len(t, sps, 2)
		assert.Equal(t, scalarweb.ServiceAudio, sps[0].Name)
		assert.True(t, sps[0].HasWebSocket())
		assert.Equal(t, scalarweb.ServiceSystem, sps[1].Name)
	})

	t.Run("seeded services skip discovery", func(t *testing.T) {
		tv := newFakeBravia(t, systemAPI())
		seeded := scalarweb.NewServiceProtocol(scalarweb.ServiceSystem, scalarweb.ProtocolHTTP)
		c := newClient(t, tv, bravia.WithServices(seeded))

		sps, err := c.ServiceProtocols(ctx)
		require.NoError(t, err)
		assert.Equal(t, []scalarweb.ServiceProtocol{seeded}, sps)
		assert.Empty(t, tv.callsTo(scalarweb.ServiceGuide))
	})

	t.Run("access code is sent on every call", func(t *testing.T) {
		tv := newFakeBravia(t, systemAPI())
		c := newClient(t, tv, bravia.WithAccessCode("1234"))

		c.Call(ctx, scalarweb.ServiceSystem, scalarweb.MethodGetPowerStatus, "")
		calls := tv.callsTo(scalarweb.ServiceSystem)
		require.Len(t, calls, 1)
		assert.Equal(t, "1234", calls[0].Header.Get("X-Auth-PSK"))
	})

	t.Run("request code is never sent as a key", func(t *testing.T) {
		tv := newFakeBravia(t, systemAPI())
		c := newClient(t, tv, bravia.WithAccessCode("RQST"))

		c.Call(ctx, scalarweb.ServiceSystem, scalarweb.MethodGetPowerStatus, "")
		calls := tv.callsTo(scalarweb.ServiceSystem)
		require.Len(t, calls, 1)
		assert.Empty(t, calls[0].Header.Get("X-Auth-PSK"))
	})

	t.Run("closed client refuses services", func(t *testing.T) {
		tv := newFakeBravia(t, systemAPI())
		c := newClient(t, tv)
		require.NoError(t, c.Close())

		_, err := c.Service(ctx, scalarweb.ServiceSystem)
		assert.ErrorIs(t, err, bravia.ErrClientClosed)
		assert.True(t, c.Call(ctx, scalarweb.ServiceSystem, scalarweb.MethodGetPowerStatus, "").IsError())
	})
}

func TestBraviaClientRemote(t *testing.T) {
	ctx := context.Background()
	tv := newFakeBravia(t)
	c := newClient(t, tv, bravia.WithAccessCode("0000"))

	require.NoError(t, c.RemoteRequest(ctx, ircc.VolumeUp))

	reqs := tv.irccRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/sony/IRCC", reqs[0].URL.Path)
	assert.Equal(t, ircc.SOAPAction(), reqs[0].Header.Get(ircc.HeaderSOAPAction))
	assert.Equal(t, "0000", reqs[0].Header.Get("X-Auth-PSK"))
}
