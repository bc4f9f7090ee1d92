package lifecycle

import (
	"log/slog"

	"github.com/dmitrymomot/tenantdb/pkg/directory"
	"github.com/dmitrymomot/tenantdb/pkg/metrics"
	"github.com/dmitrymomot/tenantdb/pkg/relation"
	"github.com/dmitrymomot/tenantdb/pkg/resource"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDirectory sets the naming service used by directory tenants.
func WithDirectory(d directory.Directory) Option {
	return func(m *Manager) { m.directory = d }
}

// WithResourceTable sets the table pre-registered tenants borrow connections from.
func WithResourceTable(t *resource.Table) Option {
	return func(m *Manager) { m.table = t }
}

// WithRelations makes Reload rebuild the relation index.
func WithRelations(r *relation.Resolver) Option {
	return func(m *Manager) { m.relations = r }
}

// WithMetrics records provisioning and teardown metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithDefaultTenantHandler is called by Reload with the id of the record flagged default.
func WithDefaultTenantHandler(fn func(id string)) Option {
	return func(m *Manager) { m.onDefault = fn }
}

// WithReloadConcurrency bounds how many tenants Reload provisions at once.
func WithReloadConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.reloadConcurrency = n
		}
	}
}
