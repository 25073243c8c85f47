// Package action maps action names to the handlers that execute them.
//
// A Registry is an ordinary value: several can coexist (one per runtime, one
// per test). For applications that prefer a process-wide table there is a
// default registry which must be installed explicitly with SetDefault before
// MustRegister is used; registering into a missing default fails fast.
package action

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/decisionmesh/core"
)

// Handler executes one action for a decision. The returned map becomes the
// decision result; a non-nil error marks the decision failed.
type Handler func(ctx context.Context, dc *core.DecisionContext) (map[string]any, error)

// Registrar installs a set of handlers into a registry. Registrars are plain
// functions invoked by the runtime builder in a fixed order.
type Registrar func(r *Registry)

// Registry is a name to handler table guarded by a single lock.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to h. A later registration of the same name replaces
// the earlier one.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Apply runs each registrar against r in order.
func (r *Registry) Apply(registrars ...Registrar) {
	for _, reg := range registrars {
		if reg != nil {
			reg(r)
		}
	}
}

// Handler returns the handler bound to name.
func (r *Registry) Handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Handler(name)
	return ok
}

// Actions returns the registered names in sorted order.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)

	return names
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

var defaultRegistry atomic.Pointer[Registry]

// SetDefault installs r as the process-wide default registry. Passing nil
// clears it.
func SetDefault(r *Registry) { defaultRegistry.Store(r) }

// Default returns the default registry, or nil when none is installed.
func Default() *Registry { return defaultRegistry.Load() }

// MustRegister registers h under name in the default registry. It panics if
// no default registry has been installed.
func MustRegister(name string, h Handler) {
	r := Default()
	if r == nil {
		panic("action: no default registry installed; call action.SetDefault first")
	}
	r.Register(name, h)
}
