package provider

import (
	"fmt"
	"sync"
)

// Backend binds a backend name to its provider and the model it queries.
type Backend struct {
	Name     string
	Model    string
	Provider Provider
}

// Registry maps backend names to their providers, keeping registration
// order. Thread-safe for concurrent access during queries.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	backends map[string]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register associates a backend name with a provider and model.
// Re-registering a name replaces it without changing its position.
func (r *Registry) Register(name, model string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.backends[name]; !ok {
		r.order = append(r.order, name)
	}
	r.backends[name] = Backend{Name: name, Model: model, Provider: p}
}

// Get retrieves a backend by name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return Backend{}, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return b, nil
}

// Backends returns registered backend names in registration order.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
