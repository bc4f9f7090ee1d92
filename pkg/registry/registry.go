package registry

import (
	"sort"
	"sync"

	"github.com/dmitrymomot/tenantdb/pkg/resource"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// Registry maps tenant ids to fully built resource bundles.
// The lock is held only for the map operation itself; opening and closing
// resources is the caller's job and happens outside of it.
type Registry struct {
	mu      sync.RWMutex
	bundles map[string]*resource.Bundle
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{bundles: make(map[string]*resource.Bundle)}
}

// Register publishes b under id. It never overwrites: a second registration
// of the same id fails with tenant.ErrAlreadyExists and keeps the original.
func (r *Registry) Register(id string, b *resource.Bundle) error {
	if id == "" || b == nil {
		return ErrInvalidBundle
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bundles[id]; exists {
		return tenant.ErrAlreadyExists
	}
	r.bundles[id] = b
	return nil
}

// Lookup returns the bundle registered under id or tenant.ErrNotFound.
func (r *Registry) Lookup(id string) (*resource.Bundle, error) {
	r.mu.RLock()
	b, ok := r.bundles[id]
	r.mu.RUnlock()

	if !ok {
		return nil, tenant.ErrNotFound
	}
	return b, nil
}

// Unregister removes and returns the bundle registered under id.
// Once it returns, Lookup(id) fails with tenant.ErrNotFound.
func (r *Registry) Unregister(id string) (*resource.Bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bundles[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	delete(r.bundles, id)
	return b, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bundles[id]
	return ok
}

// Len returns the number of registered tenants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bundles)
}

// IDs returns registered tenant ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.bundles))
	for id := range r.bundles {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the current id to bundle mapping.
func (r *Registry) Snapshot() map[string]*resource.Bundle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*resource.Bundle, len(r.bundles))
	for id, b := range r.bundles {
		out[id] = b
	}
	return out
}

// Drain unregisters every tenant and returns the removed bundles.
func (r *Registry) Drain() map[string]*resource.Bundle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.bundles
	r.bundles = make(map[string]*resource.Bundle)
	return out
}
