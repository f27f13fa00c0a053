package plugin

import (
	"context"
	"fmt"
	"strings"

	"github.com/reccd/reccd/internal/rerrors"
	"github.com/reccd/reccd/route"
)

// State reports where a Host sits in its open/register/close lifecycle.
type State int

const (
	StateCreated State = iota
	StateOpened
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpened:
		return "opened"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Route pairs a compiled Matcher with the handler and declared
// method/path it was compiled from.
type Route struct {
	Method  string
	Path    string
	Handler HandlerFunc
	Matcher *route.Matcher
}

// Handle is a loaded plugin plus its reflected Capabilities. It carries
// no lifecycle state of its own — that is Host's job — so a Handle can
// be freely shared with callers that only need to inspect what a plugin
// declares (e.g. diagnostics, Register's validation step).
type Handle struct {
	ModuleName string
	Plugin     Plugin
	Caps       Capabilities
}

func newHandle(moduleName string, p Plugin, caps Capabilities) *Handle {
	return &Handle{ModuleName: moduleName, Plugin: p, Caps: caps}
}

// Host wraps one Handle and drives it through the Created -> Opened ->
// Closing -> Closed lifecycle. It is intentionally not internally
// mutex-guarded: per spec.md's concurrency model, lifecycle transitions
// are serialized by the single boot sequence that calls Open/Close, and
// the route table is only ever rebuilt inside Open and read afterward —
// concurrent Route lookups therefore need no lock. Host groups its
// methods by concern into three unexported sub-structs (lifecycle,
// register, router), matching the original's three mixins, but promotes
// every method directly onto Host rather than using embedding-based
// polymorphism.
type Host struct {
	handle *Handle

	lifecycle hostLifecycle
	register  hostRegister
	router    hostRouter
}

type hostLifecycle struct {
	state State
}

type hostRegister struct {
	registered bool
}

type hostRouter struct {
	routes []Route
}

// NewHost wraps handle in a fresh Host in StateCreated.
func NewHost(handle *Handle) *Host {
	return &Host{handle: handle}
}

// State reports the current lifecycle state.
func (h *Host) State() State { return h.lifecycle.state }

// Handle returns the wrapped plugin Handle.
func (h *Host) Handle() *Handle { return h.handle }

// Routes returns the route table built by the last successful Open.
func (h *Host) Routes() []Route { return h.router.routes }

// Open runs the plugin's OnOpen callback (if any), then OnRoutes (if
// any) to build the route table, and transitions to StateOpened. Open
// returns a KindCallbackInvalidState error if the Host is already past
// StateCreated — callers are expected to call it exactly once, mirroring
// module_open.py.
func (h *Host) Open(ctx context.Context) error {
	const op = rerrors.Op("plugin.Host.Open")

	if h.lifecycle.state != StateCreated {
		return rerrors.Callback(op, rerrors.KindCallbackInvalidState, h.handle.ModuleName, "on_open",
			fmt.Errorf("open called in state %s", h.lifecycle.state))
	}

	if h.handle.Caps.HasOnOpen {
		opener, ok := h.handle.Plugin.(OnOpener)
		if !ok {
			return rerrors.Callback(op, rerrors.KindCallbackInvalidReturnValue, h.handle.ModuleName, "on_open",
				fmt.Errorf("capability snapshot says on_open exists but type assertion failed"))
		}
		if err := opener.OnOpen(ctx); err != nil {
			return rerrors.Callback(op, rerrors.KindCallbackRuntime, h.handle.ModuleName, "on_open", err)
		}
	}

	if h.handle.Caps.HasOnRoutes {
		router, ok := h.handle.Plugin.(OnRouteser)
		if !ok {
			return rerrors.Callback(op, rerrors.KindCallbackInvalidReturnValue, h.handle.ModuleName, "on_routes",
				fmt.Errorf("capability snapshot says on_routes exists but type assertion failed"))
		}
		defs, err := router.OnRoutes()
		if err != nil {
			return rerrors.Callback(op, rerrors.KindCallbackRuntime, h.handle.ModuleName, "on_routes", err)
		}
		routes, err := compileRoutes(defs)
		if err != nil {
			return rerrors.Callback(op, rerrors.KindCallbackInvalidReturnValue, h.handle.ModuleName, "on_routes", err)
		}
		h.router.routes = routes
	}

	h.lifecycle.state = StateOpened
	return nil
}

// Register runs the plugin's OnRegister callback (if any) and returns
// its status code. Register fails if the Host is already registered,
// matching module_register.py's guard against a second handshake.
func (h *Host) Register(ctx context.Context, args []string, kwargs map[string]string) (int, error) {
	const op = rerrors.Op("plugin.Host.Register")

	if h.lifecycle.state != StateOpened {
		return 0, rerrors.Callback(op, rerrors.KindCallbackInvalidState, h.handle.ModuleName, "on_register",
			fmt.Errorf("register called in state %s", h.lifecycle.state))
	}

	if h.register.registered {
		return 0, rerrors.Callback(op, rerrors.KindCallbackInvalidState, h.handle.ModuleName, "on_register",
			fmt.Errorf("already registered"))
	}

	status := 0
	if h.handle.Caps.HasOnRegister {
		registerer, ok := h.handle.Plugin.(OnRegisterer)
		if !ok {
			return 0, rerrors.Callback(op, rerrors.KindCallbackInvalidReturnValue, h.handle.ModuleName, "on_register",
				fmt.Errorf("capability snapshot says on_register exists but type assertion failed"))
		}
		var err error
		status, err = registerer.OnRegister(ctx, args, kwargs)
		if err != nil {
			return 0, rerrors.Callback(op, rerrors.KindCallbackRuntime, h.handle.ModuleName, "on_register", err)
		}
	}

	h.register.registered = true
	return status, nil
}

// Registered reports whether Register has completed successfully at
// least once.
func (h *Host) Registered() bool { return h.register.registered }

// RegisterThresholds returns the shared-memory thresholds the plugin
// advertises via OnRegisterThresholds, or (0, 0) if it doesn't implement
// that optional interface.
func (h *Host) RegisterThresholds() (minSmSize, minSmByte int64) {
	if !h.handle.Caps.HasRegisterThresholds {
		return 0, 0
	}
	t, ok := h.handle.Plugin.(OnRegisterThresholds)
	if !ok {
		return 0, 0
	}
	return t.RegisterThresholds()
}

// Route resolves method and path against the route table built by Open,
// returning the first matching Route's handler and its captured path
// parameters. Routes are tried in declaration order, first match wins,
// mirroring module_router.py.
func (h *Host) Route(method, path string) (HandlerFunc, map[string]string, error) {
	const op = rerrors.Op("plugin.Host.Route")

	method = strings.ToUpper(strings.TrimSpace(method))
	for _, r := range h.router.routes {
		if r.Method != method {
			continue
		}
		if params, ok := r.Matcher.Match(path); ok {
			return r.Handler, params, nil
		}
	}
	return nil, nil, rerrors.Callback(op, rerrors.KindNotFoundRoute, h.handle.ModuleName, "",
		fmt.Errorf("no route matches %s %s", method, path))
}

// Close runs the plugin's OnClose callback (if any). While the callback
// runs, State reports StateClosing. opened only flips to StateClosed
// once OnClose returns without error; on error the Host reverts to
// StateOpened so a failed close can be retried or surfaced rather than
// silently leaving a half-torn-down plugin marked closed.
func (h *Host) Close(ctx context.Context) error {
	const op = rerrors.Op("plugin.Host.Close")

	if h.lifecycle.state != StateOpened {
		return rerrors.Callback(op, rerrors.KindCallbackInvalidState, h.handle.ModuleName, "on_close",
			fmt.Errorf("close called in state %s", h.lifecycle.state))
	}

	h.lifecycle.state = StateClosing

	if h.handle.Caps.HasOnClose {
		closer, ok := h.handle.Plugin.(OnCloser)
		if !ok {
			h.lifecycle.state = StateOpened
			return rerrors.Callback(op, rerrors.KindCallbackInvalidReturnValue, h.handle.ModuleName, "on_close",
				fmt.Errorf("capability snapshot says on_close exists but type assertion failed"))
		}
		if err := closer.OnClose(ctx); err != nil {
			h.lifecycle.state = StateOpened
			return rerrors.Callback(op, rerrors.KindCallbackRuntime, h.handle.ModuleName, "on_close", err)
		}
	}

	h.lifecycle.state = StateClosed
	return nil
}

func compileRoutes(defs []RouteDef) ([]Route, error) {
	routes := make([]Route, 0, len(defs))
	for _, d := range defs {
		m, err := route.Compile(d.Path)
		if err != nil {
			return nil, err
		}
		method := strings.ToUpper(strings.TrimSpace(d.Method))
		routes = append(routes, Route{Method: method, Path: d.Path, Handler: d.Handler, Matcher: m})
	}
	return routes, nil
}
