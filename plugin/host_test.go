package plugin_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reccd/reccd/plugin"
)

type fullPlugin struct {
	openCalled, closeCalled, registerCalled bool
	closeErr                                error
	registerStatus                          int
}

func (p *fullPlugin) ModuleName() string { return "full" }

func (p *fullPlugin) OnOpen(ctx context.Context) error {
	p.openCalled = true
	return nil
}

func (p *fullPlugin) OnClose(ctx context.Context) error {
	p.closeCalled = true
	return p.closeErr
}

func (p *fullPlugin) OnRegister(ctx context.Context, args []string, kwargs map[string]string) (int, error) {
	p.registerCalled = true
	return p.registerStatus, nil
}

func (p *fullPlugin) OnRoutes() ([]plugin.RouteDef, error) {
	return []plugin.RouteDef{
		{Method: "GET", Path: "/ping", Handler: func(ctx context.Context, params map[string]string, args []any, kwargs map[string]any) (*plugin.CallResult, error) {
			return &plugin.CallResult{Args: []any{"pong"}}, nil
		}},
	}, nil
}

type bareePlugin struct{}

func (bareePlugin) ModuleName() string { return "bare" }

func TestHostOpenRegisterRouteClose(t *testing.T) {
	reg := plugin.Registry{}
	reg.Register("full", func() plugin.Plugin { return &fullPlugin{registerStatus: 7} })

	handle, err := reg.Load("full", false)
	require.NoError(t, err)
	assert.True(t, handle.Caps.HasOnOpen)
	assert.True(t, handle.Caps.HasOnClose)
	assert.True(t, handle.Caps.HasOnRegister)
	assert.True(t, handle.Caps.HasOnRoutes)

	host := plugin.NewHost(handle)
	assert.Equal(t, plugin.StateCreated, host.State())

	require.NoError(t, host.Open(context.Background()))
	assert.Equal(t, plugin.StateOpened, host.State())
	assert.True(t, handle.Plugin.(*fullPlugin).openCalled)

	status, err := host.Register(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, status)
	assert.True(t, host.Registered())

	handler, params, err := host.Route("GET", "/ping")
	require.NoError(t, err)
	assert.Empty(t, params)
	result, err := handler(context.Background(), params, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"pong"}, result.Args)

	_, _, err = host.Route("POST", "/ping")
	assert.Error(t, err)

	require.NoError(t, host.Close(context.Background()))
	assert.Equal(t, plugin.StateClosed, host.State())
	assert.True(t, handle.Plugin.(*fullPlugin).closeCalled)
}

func TestHostRouteFoldsMethodCase(t *testing.T) {
	reg := plugin.Registry{}
	reg.Register("full", func() plugin.Plugin { return &fullPlugin{} })

	handle, err := reg.Load("full", false)
	require.NoError(t, err)

	host := plugin.NewHost(handle)
	require.NoError(t, host.Open(context.Background()))

	handler, params, err := host.Route("get", "/ping")
	require.NoError(t, err)
	assert.Empty(t, params)
	result, err := handler(context.Background(), params, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"pong"}, result.Args)
}

func TestHostRegisterFailsWhenAlreadyRegistered(t *testing.T) {
	reg := plugin.Registry{}
	reg.Register("full", func() plugin.Plugin { return &fullPlugin{registerStatus: 7} })

	handle, err := reg.Load("full", false)
	require.NoError(t, err)

	host := plugin.NewHost(handle)
	require.NoError(t, host.Open(context.Background()))

	_, err = host.Register(context.Background(), nil, nil)
	require.NoError(t, err)

	_, err = host.Register(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestHostCloseFailureRevertsToOpened(t *testing.T) {
	p := &fullPlugin{closeErr: errors.New("teardown failed")}
	handle := &plugin.Handle{ModuleName: "full", Plugin: p, Caps: plugin.Capabilities{HasOnClose: true}}
	host := plugin.NewHost(handle)
	require.NoError(t, host.Open(context.Background()))

	err := host.Close(context.Background())
	assert.Error(t, err)
	assert.Equal(t, plugin.StateOpened, host.State())
}

func TestHostBarePluginHasNoCapabilities(t *testing.T) {
	reg := plugin.Registry{}
	reg.Register("bare", func() plugin.Plugin { return bareePlugin{} })

	handle, err := reg.Load("bare", false)
	require.NoError(t, err)
	assert.False(t, handle.Caps.HasOnOpen)
	assert.False(t, handle.Caps.HasOnClose)
	assert.False(t, handle.Caps.HasOnRegister)
	assert.False(t, handle.Caps.HasOnRoutes)

	host := plugin.NewHost(handle)
	require.NoError(t, host.Open(context.Background()))
	_, _, err = host.Route("GET", "/anything")
	assert.Error(t, err)
}

func TestLoadUnknownModule(t *testing.T) {
	reg := plugin.Registry{}
	_, err := reg.Load("does-not-exist", false)
	assert.Error(t, err)
}
