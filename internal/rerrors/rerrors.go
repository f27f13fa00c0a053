// Package rerrors is the error taxonomy shared by the daemon, the plugin
// host, and the route matcher. It builds on roadrunner-server/errors'
// Op/Kind/E pattern so every error carries both an operation trail and a
// classifiable Kind, and wraps the plugin callback site (module + callback
// name) the spec requires to always be identifiable.
package rerrors

import (
	"fmt"

	"github.com/roadrunner-server/errors"
)

// Op names the operation where an error originated, e.g. "plugin.Host.Open".
type Op = errors.Op

// Kind classifies an error per spec.md §7. Values above roadrunner's own
// predefined kinds so the two enumerations never collide.
type Kind = errors.Kind

const (
	// KindTemplate: malformed route template.
	KindTemplate Kind = iota + 100
	// KindNotFoundRoute: no route matches an incoming (method, path).
	KindNotFoundRoute
	// KindCallbackNotFound: plugin does not export an expected lifecycle name.
	KindCallbackNotFound
	// KindCallbackInvalidState: callback invoked in the wrong phase.
	KindCallbackInvalidState
	// KindCallbackNotAsync: on_open/on_close/on_register must be async.
	KindCallbackNotAsync
	// KindCallbackIsAsync: on_routes must be sync.
	KindCallbackIsAsync
	// KindCallbackRuntime: the plugin callback itself returned an error.
	KindCallbackRuntime
	// KindCallbackInvalidReturnValue: callback returned the wrong shape.
	KindCallbackInvalidReturnValue
	// KindShmProtocol: sm_names disagree with per-Content references.
	KindShmProtocol
	// KindTransport: channel-ready timeout, connection refused, peer reset.
	KindTransport
	// KindProtocolOrder: e.g. request issued before register.
	KindProtocolOrder
)

// CallbackError pins an error to the plugin site that produced it, so a
// wrapped error always answers "which module, which callback".
type CallbackError struct {
	Module   string
	Callback string
	Err      error
}

func (e *CallbackError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s.%s", e.Module, e.Callback)
	}
	return fmt.Sprintf("%s.%s: %v", e.Module, e.Callback, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// Callback builds an error for a plugin lifecycle callback failure, tagged
// with op and kind and wrapping the originating (module, callback, cause).
func Callback(op Op, kind Kind, module, callback string, cause error) error {
	return errors.E(op, kind, &CallbackError{Module: module, Callback: callback, Err: cause})
}

// Is reports whether err (or anything it wraps) carries kind.
func Is(kind Kind, err error) bool {
	return errors.Is(kind, err)
}
