package tenant

import (
	"context"
	"log/slog"
	"sync"
)

// selection is the mutable current-tenant holder of one execution context.
// Only the task owning the context writes to it; the mutex lets forks taken
// from another goroutine read it safely.
type selection struct {
	mu  sync.RWMutex
	id  string
	set bool
}

func (s *selection) get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.set
}

func (s *selection) store(id string) {
	s.mu.Lock()
	s.id, s.set = id, id != ""
	s.mu.Unlock()
}

// selectionKey is a private type to prevent collisions with other context keys.
type selectionKey struct{}

func selectionFrom(ctx context.Context) *selection {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(selectionKey{}).(*selection)
	return s
}

// NewContext attaches an empty selection scope to ctx. Use it at the boundary
// of a unit of work (request, job) so nothing selected earlier leaks in.
func NewContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, selectionKey{}, &selection{})
}

// Fork attaches a child selection scope that starts with the parent's current
// tenant. Changes made through the returned context never reach the parent.
func Fork(ctx context.Context) context.Context {
	child := &selection{}
	if id, ok := Current(ctx); ok {
		child.store(id)
	}
	return context.WithValue(ctx, selectionKey{}, child)
}

// WithTenantID returns a child context whose scope already selects id.
func WithTenantID(ctx context.Context, id string) context.Context {
	s := &selection{}
	s.store(id)
	return context.WithValue(ctx, selectionKey{}, s)
}

// Set selects id as the current tenant of the scope carried by ctx.
// The change is visible to every later Current call on ctx and on contexts
// derived from it with context.With* (but not to earlier forks).
func Set(ctx context.Context, id string) error {
	s := selectionFrom(ctx)
	if s == nil {
		return ErrNoSelectionScope
	}
	s.store(id)
	return nil
}

// Current returns the tenant selected in ctx, if any.
func Current(ctx context.Context) (string, bool) {
	s := selectionFrom(ctx)
	if s == nil {
		return "", false
	}
	return s.get()
}

// Clear removes the selection from the scope carried by ctx.
// It is a no-op when ctx has no scope.
func Clear(ctx context.Context) {
	if s := selectionFrom(ctx); s != nil {
		s.store("")
	}
}

// HasScope reports whether ctx carries a selection scope.
func HasScope(ctx context.Context) bool {
	return selectionFrom(ctx) != nil
}

// LoggerExtractor returns a ContextExtractor for the logger that adds the selected tenant id.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id, ok := Current(ctx); ok {
			return slog.String("tenant_id", id), true
		}
		return slog.Attr{}, false
	}
}
