package cdn

import (
	"sync"

	"golang.org/x/xerrors"
)

// ErrUnknownDriver is returned when a driver lookup fails.
var ErrUnknownDriver = xerrors.New("unknown driver")

// ProviderFactory constructs a provider adapter from its configuration
// URI.
type ProviderFactory func(uri string) (ProviderAdapter, error)

// DNSFactory constructs a DNS adapter from its configuration URI.
type DNSFactory func(uri string) (DNSAdapter, error)

// StorageFactory constructs a storage adapter from its configuration URI.
type StorageFactory func(uri string) (StorageAdapter, error)

// DriverRegistry maps configuration identifiers to driver constructors.
// Driver sets are assembled explicitly at startup; an identifier that was
// never registered fails fast at build time instead of surfacing as a nil
// adapter mid-flow.
type DriverRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
	dns       map[string]DNSFactory
	storage   map[string]StorageFactory
}

// NewDriverRegistry creates an empty driver registry.
func NewDriverRegistry() *DriverRegistry {
	return &DriverRegistry{
		providers: make(map[string]ProviderFactory),
		dns:       make(map[string]DNSFactory),
		storage:   make(map[string]StorageFactory),
	}
}

// RegisterProvider associates name with a provider adapter constructor.
func (r *DriverRegistry) RegisterProvider(name string, factory ProviderFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" || factory == nil {
		return xerrors.New("driver registry: provider name and factory must be specified")
	}
	if _, exists := r.providers[name]; exists {
		return xerrors.Errorf("driver registry: provider %q already registered", name)
	}
	r.providers[name] = factory
	return nil
}

// RegisterDNS associates name with a DNS adapter constructor.
func (r *DriverRegistry) RegisterDNS(name string, factory DNSFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" || factory == nil {
		return xerrors.New("driver registry: dns name and factory must be specified")
	}
	if _, exists := r.dns[name]; exists {
		return xerrors.Errorf("driver registry: dns %q already registered", name)
	}
	r.dns[name] = factory
	return nil
}

// RegisterStorage associates name with a storage adapter constructor.
func (r *DriverRegistry) RegisterStorage(name string, factory StorageFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" || factory == nil {
		return xerrors.New("driver registry: storage name and factory must be specified")
	}
	if _, exists := r.storage[name]; exists {
		return xerrors.Errorf("driver registry: storage %q already registered", name)
	}
	r.storage[name] = factory
	return nil
}

// BuildProvider constructs the provider adapter registered under name.
func (r *DriverRegistry) BuildProvider(name, uri string) (ProviderAdapter, error) {
	r.mu.RLock()
	factory, exists := r.providers[name]
	r.mu.RUnlock()
	if !exists {
		return nil, xerrors.Errorf("provider %q: %w", name, ErrUnknownDriver)
	}
	return factory(uri)
}

// BuildDNS constructs the DNS adapter registered under name.
func (r *DriverRegistry) BuildDNS(name, uri string) (DNSAdapter, error) {
	r.mu.RLock()
	factory, exists := r.dns[name]
	r.mu.RUnlock()
	if !exists {
		return nil, xerrors.Errorf("dns %q: %w", name, ErrUnknownDriver)
	}
	return factory(uri)
}

// BuildStorage constructs the storage adapter registered under name.
func (r *DriverRegistry) BuildStorage(name, uri string) (StorageAdapter, error) {
	r.mu.RLock()
	factory, exists := r.storage[name]
	r.mu.RUnlock()
	if !exists {
		return nil, xerrors.Errorf("storage %q: %w", name, ErrUnknownDriver)
	}
	return factory(uri)
}
