package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/metrics"
	"github.com/dmitrymomot/tenantdb/pkg/registry"
	"github.com/dmitrymomot/tenantdb/pkg/resource"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// Dispatch sources reported to metrics.
const (
	SourceSelected = "selected"
	SourceDefault  = "default"
	SourceNone     = "none"
)

// ErrNoTenantSelected is returned when nothing is selected and no default tenant is configured.
var ErrNoTenantSelected = errors.New("dispatch: no tenant selected and no default tenant configured")

// Router resolves the bundle of the current tenant.
type Router struct {
	registry *registry.Registry
	fallback atomic.Pointer[string]
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithDefault sets the default tenant used when nothing is selected.
func WithDefault(id string) Option {
	return func(r *Router) {
		r.SetDefault(id)
	}
}

// WithMetrics records every dispatch.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a router reading from reg.
func New(reg *registry.Registry, opts ...Option) *Router {
	r := &Router{
		registry: reg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetDefault replaces the default tenant. An empty id removes it.
func (r *Router) SetDefault(id string) {
	if id == "" {
		r.fallback.Store(nil)
		return
	}
	r.fallback.Store(&id)
}

// Default returns the default tenant, if one is configured.
func (r *Router) Default() (string, bool) {
	p := r.fallback.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

// Target returns the tenant id a dispatch from ctx would use and where it came from.
func (r *Router) Target(ctx context.Context) (id, source string) {
	if id, ok := tenant.Current(ctx); ok {
		return id, SourceSelected
	}
	if id, ok := r.Default(); ok {
		return id, SourceDefault
	}
	return "", SourceNone
}

// Bundle returns the bundle of the tenant selected in ctx, or of the default
// tenant when nothing is selected. Both failure cases wrap tenant.ErrTenantUnavailable.
func (r *Router) Bundle(ctx context.Context) (*resource.Bundle, error) {
	id, source := r.Target(ctx)
	if source == SourceNone {
		r.metrics.Dispatched(source, ErrNoTenantSelected)
		return nil, errors.Join(tenant.ErrTenantUnavailable, ErrNoTenantSelected)
	}

	b, err := r.registry.Lookup(id)
	r.metrics.Dispatched(source, err)
	if err != nil {
		r.logger.DebugContext(ctx, "dispatch to unregistered tenant",
			logger.TenantID(id),
			slog.String("source", source),
		)
		return nil, errors.Join(tenant.ErrTenantUnavailable, err)
	}
	return b, nil
}

// Current returns the persistence context of the current tenant. See Bundle.
func (r *Router) Current(ctx context.Context) (resource.PersistenceContext, error) {
	b, err := r.Bundle(ctx)
	if err != nil {
		return nil, err
	}
	return b.Context, nil
}

// Conn returns the connection of the current tenant. See Bundle.
func (r *Router) Conn(ctx context.Context) (resource.Conn, error) {
	b, err := r.Bundle(ctx)
	if err != nil {
		return nil, err
	}
	return b.Conn, nil
}
