package plugin

import (
	"fmt"
	"sync"

	"github.com/reccd/reccd/internal/rerrors"
)

// Factory constructs a fresh Plugin value for a module name. Plugins
// register a Factory at package init time, mirroring the original
// daemon's import-time module discovery (reccd/module/module.py's
// registry of importable modules).
type Factory func() Plugin

// Registry is a process-wide table of module-name -> Factory. The zero
// value is ready to use; DefaultRegistry is used by Load unless a caller
// supplies its own.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// DefaultRegistry is the registry plugin binaries register themselves
// into via Register, and the one Load consults by default.
var DefaultRegistry = &Registry{}

// Register adds a Factory under moduleName. Calling Register twice for
// the same name replaces the previous Factory — last import wins, same
// as reassigning a dict entry.
func (r *Registry) Register(moduleName string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	r.factories[moduleName] = f
}

// Register adds f to DefaultRegistry.
func Register(moduleName string, f Factory) { DefaultRegistry.Register(moduleName, f) }

// Load instantiates the plugin registered under moduleName and wraps it
// in a Handle with its Capabilities snapshotted. isolated is accepted for
// parity with spec.md's PluginLoader.Load(moduleName, isolated) but has
// no effect in-process: every plugin here runs in the daemon's own
// address space, so there is nothing to isolate against. A future
// out-of-process loader (one goroutine-per-subprocess à la the teacher's
// Client) would honor it by launching a child process instead.
func (r *Registry) Load(moduleName string, isolated bool) (*Handle, error) {
	const op = rerrors.Op("plugin.Load")

	r.mu.RLock()
	f, ok := r.factories[moduleName]
	r.mu.RUnlock()
	if !ok {
		return nil, rerrors.Callback(op, rerrors.KindCallbackNotFound, moduleName, "",
			fmt.Errorf("no plugin registered under module name %q", moduleName))
	}

	p := f()
	caps := reflectCapabilities(moduleName, p)
	return newHandle(moduleName, p, caps), nil
}

// Load instantiates moduleName from DefaultRegistry.
func Load(moduleName string, isolated bool) (*Handle, error) {
	return DefaultRegistry.Load(moduleName, isolated)
}
