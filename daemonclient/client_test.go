package daemonclient_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/reccd/reccd/daemon"
	"github.com/reccd/reccd/daemonclient"
	"github.com/reccd/reccd/internal/config"
	"github.com/reccd/reccd/plugin"
	"github.com/reccd/reccd/rpcapi"
)

type echoPlugin struct{}

func (echoPlugin) ModuleName() string { return "echo" }

func (echoPlugin) OnRoutes() ([]plugin.RouteDef, error) {
	return []plugin.RouteDef{
		{Method: "GET", Path: "/echo", Handler: func(ctx context.Context, params map[string]string, args []any, kwargs map[string]any) (*plugin.CallResult, error) {
			return &plugin.CallResult{Args: args}, nil
		}},
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// dialServer boots an in-memory daemon.Servicer over bufconn and returns a
// connected, registered Client ready for Request calls.
func dialServer(t *testing.T) *daemonclient.Client {
	t.Helper()

	handle := &plugin.Handle{ModuleName: "echo", Plugin: echoPlugin{}, Caps: plugin.Capabilities{HasOnRoutes: true}}
	host := plugin.NewHost(handle)
	servicer := daemon.NewServicer(host, testLogger())
	require.NoError(t, servicer.Open(context.Background()))

	lis := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer()
	rpcapi.RegisterReccdAPIServer(server, servicer)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.Dial() }

	client := daemonclient.New(config.BindDescriptor{Address: "passthrough:///bufnet"}, daemonclient.WithLogger(testLogger()),
		daemonclient.WithDialOptions(grpc.WithContextDialer(dialer)))

	require.NoError(t, client.Open(context.Background()))
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	return client
}

func TestOpenHeartbeatRegisterRequest(t *testing.T) {
	client := dialServer(t)

	ok, err := client.Heartbeat(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, ok)

	code, err := client.Register(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, rpcapi.RegisterCodeNotFoundRegisterFn, code)
	assert.Equal(t, daemonclient.StateRegistered, client.State())

	resp, err := client.Request(context.Background(), "GET", "/echo", []any{"hi"}, nil)
	require.NoError(t, err)
	require.Len(t, resp.Args, 1)
	assert.Equal(t, "hi", resp.Args[0])
}

func TestRequestFailureClosesChannel(t *testing.T) {
	client := dialServer(t)

	_, err := client.Register(context.Background(), nil, nil)
	require.NoError(t, err)

	_, err = client.Request(context.Background(), "GET", "/does-not-exist", nil, nil)
	assert.Error(t, err)
	assert.Equal(t, daemonclient.StateClosed, client.State())
}

func TestRequestBeforeRegisterFails(t *testing.T) {
	client := dialServer(t)
	_, err := client.Request(context.Background(), "GET", "/echo", nil, nil)
	assert.Error(t, err)
}

func TestHeartbeatBeforeOpenFails(t *testing.T) {
	client := daemonclient.New(config.BindDescriptor{Address: "bufnet"})
	_, err := client.Heartbeat(context.Background(), 0)
	assert.Error(t, err)
}
