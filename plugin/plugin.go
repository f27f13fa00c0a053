// Package plugin wraps a loaded plugin module, tracks its open/registered
// state, and dispatches requests to the routes it declares. It is the Go
// realization of the original daemon's Module class and its mixins
// (reccd/module/module.py, reccd/module/mixin/*).
package plugin

import (
	"context"
	"reflect"
)

// HandlerFunc is a route handler contributed by a plugin's OnRoutes.
type HandlerFunc func(ctx context.Context, params map[string]string, args []any, kwargs map[string]any) (*CallResult, error)

// CallResult is a handler's return value, positional and keyword.
type CallResult struct {
	Args   []any
	Kwargs map[string]any
}

// RouteDef is one (method, path, handler) triple, exactly as the spec's
// on_routes is required to return.
type RouteDef struct {
	Method  string
	Path    string
	Handler HandlerFunc
}

// Plugin is the minimal identity every loaded module must provide. The
// four lifecycle hooks are each optional and are detected through the
// OnOpener/OnCloser/OnRegisterer/OnRouteser sub-interfaces below — Go's
// static interface satisfaction stands in for the original's runtime
// hasattr/iscoroutinefunction duck-typing.
type Plugin interface {
	// ModuleName identifies the plugin in logs and wrapped errors.
	ModuleName() string
}

// OnOpener is implemented by plugins that need one-time async setup before
// the first request. Must be the only shape on_open may take: there is no
// synchronous counterpart, matching spec.md's "on_open must be async".
type OnOpener interface {
	OnOpen(ctx context.Context) error
}

// OnCloser is implemented by plugins that need teardown when the daemon
// stops serving.
type OnCloser interface {
	OnClose(ctx context.Context) error
}

// OnRegisterer handles the Register handshake and returns an opaque status
// code understood by the caller. Shared-memory thresholds are not carried
// by this code; a plugin reports them through OnRegisterThresholds.
type OnRegisterer interface {
	OnRegister(ctx context.Context, args []string, kwargs map[string]string) (int, error)
}

// OnRegisterThresholds is an optional companion to OnRegisterer: a
// plugin implements it to advertise the shared-memory thresholds it
// wants clients to honor, the static-typing replacement for the
// original's reflective extraction of min_sm_size/min_sm_byte off
// on_register's returned mapping or attribute-bearing object.
type OnRegisterThresholds interface {
	RegisterThresholds() (minSmSize, minSmByte int64)
}

// OnRouteser declares the plugin's route table once, synchronously — the
// mirror image of OnOpener: on_routes must never block on I/O, matching
// spec.md's "on_routes must be sync" (a plugin blocking here blocks the
// single boot-time Open() caller).
type OnRouteser interface {
	OnRoutes() ([]RouteDef, error)
}

// Capabilities is populated once at Load time by reflecting over the
// loaded plugin value's method set, resolving the "Duck-typed plugin
// capability set" design note: subsequent checks are boolean field reads,
// never repeated reflection.
type Capabilities struct {
	ModuleName             string
	HasOnOpen              bool
	HasOnClose             bool
	HasOnRegister          bool
	HasOnRoutes            bool
	HasRegisterThresholds  bool
	Version                string
	Doc                    string
}

var (
	onOpenerType             = reflect.TypeOf((*OnOpener)(nil)).Elem()
	onCloserType             = reflect.TypeOf((*OnCloser)(nil)).Elem()
	onRegistererType         = reflect.TypeOf((*OnRegisterer)(nil)).Elem()
	onRoutesertype           = reflect.TypeOf((*OnRouteser)(nil)).Elem()
	onRegisterThresholdsType = reflect.TypeOf((*OnRegisterThresholds)(nil)).Elem()
)

// Versioned and Documented are optional metadata sub-interfaces, standing
// in for the original's __version__/__doc__ special attributes.
type Versioned interface{ Version() string }
type Documented interface{ Doc() string }

// reflectCapabilities builds a Capabilities snapshot for p, using reflect
// to assert interface satisfaction exactly once.
func reflectCapabilities(moduleName string, p Plugin) Capabilities {
	t := reflect.TypeOf(p)
	caps := Capabilities{
		ModuleName:            moduleName,
		HasOnOpen:             t.Implements(onOpenerType),
		HasOnClose:            t.Implements(onCloserType),
		HasOnRegister:         t.Implements(onRegistererType),
		HasOnRoutes:           t.Implements(onRoutesertype),
		HasRegisterThresholds: t.Implements(onRegisterThresholdsType),
	}
	if v, ok := p.(Versioned); ok {
		caps.Version = v.Version()
	}
	if d, ok := p.(Documented); ok {
		caps.Doc = d.Doc()
	}
	return caps
}
