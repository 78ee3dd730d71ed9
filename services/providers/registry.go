package providers

import (
	"errors"
	"sort"
)

var (
	// ErrAdapterNotFound is returned when a provider has no registered adapter
	ErrAdapterNotFound = errors.New("adapter not found")

	// ErrAdapterAlreadyRegistered is returned when trying to register a duplicate adapter
	ErrAdapterAlreadyRegistered = errors.New("adapter already registered")
)

// Registry is the provider-to-adapter lookup table, built once at startup.
// The router never branches on provider identity beyond this lookup.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter under its provider name.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return errors.New("adapter cannot be nil")
	}

	name := adapter.Name()
	if name == "" {
		return errors.New("adapter name cannot be empty")
	}

	if _, exists := r.adapters[name]; exists {
		return ErrAdapterAlreadyRegistered
	}

	r.adapters[name] = adapter
	return nil
}

// Get retrieves the adapter for a provider.
func (r *Registry) Get(provider string) (Adapter, error) {
	adapter, exists := r.adapters[provider]
	if !exists {
		return nil, ErrAdapterNotFound
	}
	return adapter, nil
}

// Providers returns the names of all registered adapters, sorted.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
