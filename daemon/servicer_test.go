package daemon_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reccd/reccd/daemon"
	"github.com/reccd/reccd/pack"
	"github.com/reccd/reccd/plugin"
	"github.com/reccd/reccd/rpcapi"
)

func pingUnpacker() *pack.Unpacker {
	return pack.NewUnpacker(pack.MsgpackZlibCodec{}, nil)
}

type pingPlugin struct{}

func (pingPlugin) ModuleName() string { return "ping" }

func (pingPlugin) OnRoutes() ([]plugin.RouteDef, error) {
	return []plugin.RouteDef{
		{Method: "GET", Path: "/ping", Handler: func(ctx context.Context, params map[string]string, args []any, kwargs map[string]any) (*plugin.CallResult, error) {
			return &plugin.CallResult{Args: []any{"pong"}}, nil
		}},
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOpenedServicer(t *testing.T) *daemon.Servicer {
	t.Helper()
	handle := &plugin.Handle{ModuleName: "ping", Plugin: pingPlugin{}, Caps: plugin.Capabilities{HasOnRoutes: true}}
	host := plugin.NewHost(handle)
	servicer := daemon.NewServicer(host, testLogger())
	require.NoError(t, servicer.Open(context.Background()))
	return servicer
}

func TestHeartbeat(t *testing.T) {
	servicer := newOpenedServicer(t)
	pat, err := servicer.Heartbeat(context.Background(), &rpcapi.Pit{Delay: 0})
	require.NoError(t, err)
	assert.True(t, pat.Ok)
}

func TestRegisterWithoutOnRegisterReportsNotFound(t *testing.T) {
	servicer := newOpenedServicer(t)
	resp, err := servicer.Register(context.Background(), &rpcapi.RegisterQ{Session: "s1"})
	require.NoError(t, err)
	assert.Equal(t, rpcapi.RegisterCodeNotFoundRegisterFn, resp.Code)
	assert.False(t, resp.IsSm)
}

func TestPacketDispatchesToRoute(t *testing.T) {
	servicer := newOpenedServicer(t)

	resp, err := servicer.Packet(context.Background(), &rpcapi.PacketQ{
		Session: "s1",
		Method:  "GET",
		Path:    "/ping",
	})
	require.NoError(t, err)
	require.Len(t, resp.Args, 1)

	unpacker := pingUnpacker()
	value, err := unpacker.ContentToAny(resp.Args[0])
	require.NoError(t, err)
	assert.Equal(t, "pong", value)
}

func TestPacketUnknownRouteReturnsError(t *testing.T) {
	servicer := newOpenedServicer(t)
	_, err := servicer.Packet(context.Background(), &rpcapi.PacketQ{Session: "s1", Method: "GET", Path: "/missing"})
	assert.Error(t, err)
}
