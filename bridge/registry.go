package bridge

import (
	"sort"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
)

// HandlerFunc serves one method. It takes the state lock itself through
// State.Read or State.Write.
type HandlerFunc func(s *State, args json.RawMessage) (Result, error)

// Registry maps method names to handlers. It is sealed when published,
// either as the default registry or by NewHandle; after that it is only
// read and lookups take no lock.
type Registry struct {
	handlers map[string]HandlerFunc
	sealed   atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register inserts or replaces the handler for name. It panics once the
// registry is sealed.
func (r *Registry) Register(name string, h HandlerFunc) {
	if r.sealed.Load() {
		panic("bridge: Register on a published registry: " + name)
	}
	r.handlers[name] = h
}

// Seal makes the registry read-only. It is idempotent.
func (r *Registry) Seal() { r.sealed.Store(true) }

// Sealed reports whether Register is still allowed.
func (r *Registry) Sealed() bool { return r.sealed.Load() }

// Lookup returns the handler for name.
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Methods returns the registered names in sorted order.
func (r *Registry) Methods() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered methods.
func (r *Registry) Len() int { return len(r.handlers) }

var defaultRegistry = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	registerHandlers(r)
	r.Seal()
	Logger().Debug("dispatch registry initialized")
	return r
})

// DefaultRegistry returns the process-wide registry holding every built-in
// method. It is built and sealed on first use.
func DefaultRegistry() *Registry { return defaultRegistry() }
