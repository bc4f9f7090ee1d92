package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// Directory resolves an external name to connection parameters.
// Lookup returns ErrNameNotFound when the name is not published.
type Directory interface {
	Lookup(ctx context.Context, name string) (tenant.ConnParams, error)
}

// Static is an in-process directory, filled from configuration or by tests.
type Static struct {
	mu      sync.RWMutex
	entries map[string]tenant.ConnParams
}

var _ Directory = (*Static)(nil)

// NewStatic creates a directory holding entries.
func NewStatic(entries map[string]tenant.ConnParams) *Static {
	s := &Static{entries: make(map[string]tenant.ConnParams, len(entries))}
	for name, p := range entries {
		s.entries[name] = p
	}
	return s
}

func (s *Static) Lookup(_ context.Context, name string) (tenant.ConnParams, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.entries[name]
	if !ok {
		return tenant.ConnParams{}, ErrNameNotFound
	}
	return p, nil
}

// Publish binds name to p, replacing any previous binding.
func (s *Static) Publish(_ context.Context, name string, p tenant.ConnParams) error {
	if name == "" || p.URL == "" {
		return ErrInvalidEntry
	}
	s.mu.Lock()
	s.entries[name] = p
	s.mu.Unlock()
	return nil
}

// Remove unbinds name.
func (s *Static) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.entries, name)
	s.mu.Unlock()
	return nil
}

// Names lists the published names in sorted order.
func (s *Static) Names(context.Context) ([]string, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names, nil
}
