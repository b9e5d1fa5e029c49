package flow

import (
	"sort"
	"sync"

	"golang.org/x/xerrors"
)

// Factory builds a flow from the call arguments stored with a posted job.
type Factory func(kwargs Values) (Atom, error)

// ErrUnknownFactory is returned when a factory lookup fails.
var ErrUnknownFactory = xerrors.New("unknown flow factory")

// Registry is an explicit, startup-validated mapping from factory names to
// flow factories. It replaces runtime plugin discovery: a job's stored
// factory reference is resolved against this registry when the job is
// dispatched.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty flow-factory registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Registering the same name twice is a
// programming error and fails.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return xerrors.New("register flow factory: empty name")
	}
	if factory == nil {
		return xerrors.Errorf("register flow factory %q: nil factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return xerrors.Errorf("register flow factory %q: already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Lookup resolves a factory by name.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[name]
	if !exists {
		return nil, xerrors.Errorf("lookup %q: %w", name, ErrUnknownFactory)
	}
	return factory, nil
}

// Names returns the sorted list of registered factory names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
