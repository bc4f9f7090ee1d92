package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/dmitrymomot/tenantdb/pkg/directory"
	"github.com/dmitrymomot/tenantdb/pkg/dispatch"
	"github.com/dmitrymomot/tenantdb/pkg/lifecycle"
	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/metrics"
	"github.com/dmitrymomot/tenantdb/pkg/orm"
	"github.com/dmitrymomot/tenantdb/pkg/pg"
	"github.com/dmitrymomot/tenantdb/pkg/registry"
	"github.com/dmitrymomot/tenantdb/pkg/relation"
	"github.com/dmitrymomot/tenantdb/pkg/resource"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// Router is the application-facing entry point. It owns the tenant registry,
// the relation index, the lifecycle manager and the dispatch router.
type Router struct {
	store     tenant.Store
	registry  *registry.Registry
	relations *relation.Resolver
	lifecycle *lifecycle.Manager
	dispatch  *dispatch.Router
	table     *resource.Table
	metrics   *metrics.Metrics
	logger    *slog.Logger

	static        StaticTenants
	defaultTenant string
}

type options struct {
	logger            *slog.Logger
	metrics           *metrics.Metrics
	directory         directory.Directory
	table             *resource.Table
	static            StaticTenants
	defaultTenant     string
	reloadConcurrency int
}

// Option configures a Router.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records provisioning, teardown and dispatch metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDirectory sets the naming service for directory tenants.
func WithDirectory(d directory.Directory) Option {
	return func(o *options) { o.directory = d }
}

// WithResourceTable sets the table of host-registered connections that
// pre-registered tenants borrow. Defaults to an empty table.
func WithResourceTable(t *resource.Table) Option {
	return func(o *options) { o.table = t }
}

// WithStaticTenants sets tenants provisioned by Start before store-backed ones.
func WithStaticTenants(st StaticTenants) Option {
	return func(o *options) { o.static = st }
}

// WithDefaultTenant sets the tenant used when nothing is selected.
func WithDefaultTenant(id string) Option {
	return func(o *options) { o.defaultTenant = id }
}

// WithReloadConcurrency bounds parallel provisioning during Reload.
func WithReloadConcurrency(n int) Option {
	return func(o *options) { o.reloadConcurrency = n }
}

// New wires a router. Nothing is provisioned until Start.
func New(store tenant.Store, conns lifecycle.ConnFactory, contexts lifecycle.ContextFactory, opts ...Option) *Router {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.table == nil {
		o.table = resource.NewTable()
	}

	r := &Router{
		store:         store,
		registry:      registry.New(),
		table:         o.table,
		metrics:       o.metrics,
		logger:        o.logger.With(logger.Component("router")),
		static:        o.static,
		defaultTenant: o.defaultTenant,
	}
	r.relations = relation.NewResolver(store, relation.WithLogger(o.logger))
	r.dispatch = dispatch.New(r.registry,
		dispatch.WithMetrics(o.metrics),
		dispatch.WithLogger(o.logger),
	)
	r.lifecycle = lifecycle.New(r.registry, store, conns, contexts,
		lifecycle.WithLogger(o.logger),
		lifecycle.WithMetrics(o.metrics),
		lifecycle.WithDirectory(o.directory),
		lifecycle.WithResourceTable(o.table),
		lifecycle.WithRelations(r.relations),
		lifecycle.WithReloadConcurrency(o.reloadConcurrency),
		lifecycle.WithDefaultTenantHandler(r.electDefault),
	)

	if id := r.initialDefault(); id != "" {
		r.dispatch.SetDefault(id)
	}
	return r
}

// initialDefault: explicit option first, then the static file.
func (r *Router) initialDefault() string {
	if r.defaultTenant != "" {
		return r.defaultTenant
	}
	return r.static.Default()
}

// electDefault applies the store's default flag unless a default was configured.
func (r *Router) electDefault(id string) {
	if r.initialDefault() != "" {
		return
	}
	r.dispatch.SetDefault(id)
	r.logger.Info("default tenant elected", logger.TenantID(id))
}

// Start seeds static tenants and relations into the store, provisions the
// static tenants, and then reloads every active store-backed tenant.
// Failing tenants are reported in the joined error; the others stay usable.
func (r *Router) Start(ctx context.Context) error {
	var errs []error
	if err := r.seedStatic(ctx); err != nil {
		errs = append(errs, err)
	}

	for _, rec := range r.static.Tenants {
		if err := r.lifecycle.Provision(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("static tenant %s: %w", rec.ID, err))
		}
	}

	if err := r.lifecycle.Reload(ctx); err != nil {
		errs = append(errs, err)
	}

	r.logger.InfoContext(ctx, "router started",
		logger.Count(r.registry.Len()),
		slog.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

func (r *Router) seedStatic(ctx context.Context) error {
	var errs []error
	for _, rec := range r.static.Tenants {
		exists, err := r.store.Exists(ctx, rec.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if exists {
			continue
		}
		if err := r.store.Insert(ctx, rec); err != nil && !errors.Is(err, tenant.ErrAlreadyExists) {
			errs = append(errs, fmt.Errorf("seed tenant %s: %w", rec.ID, err))
		}
	}
	for _, rel := range r.static.Relations {
		_, err := r.store.FindRelation(ctx, rel.RelationID, rel.Qualifier)
		if err == nil {
			continue
		}
		if !errors.Is(err, tenant.ErrNotFound) {
			errs = append(errs, err)
			continue
		}
		if _, err := r.store.InsertRelation(ctx, rel); err != nil && !errors.Is(err, tenant.ErrAlreadyExists) {
			errs = append(errs, fmt.Errorf("seed relation %s: %w", rel.RelationID, err))
		}
	}
	return errors.Join(errs...)
}

// Reload re-reads active tenants and relations from the store.
func (r *Router) Reload(ctx context.Context) error {
	return r.lifecycle.Reload(ctx)
}

// ProvisionPending provisions directory and pre-registered tenants whose
// connection source became available after Start.
func (r *Router) ProvisionPending(ctx context.Context) (int, error) {
	return r.lifecycle.ProvisionPending(ctx)
}

// RegisterResource makes a host-owned connection available to pre-registered tenants.
func (r *Router) RegisterResource(name string, conn resource.Conn) {
	r.table.Put(name, conn)
}

// Scope attaches an empty selection scope to ctx. Call it at the start of
// every unit of work that is not an HTTP request served through Middleware.
func (r *Router) Scope(ctx context.Context) context.Context {
	return tenant.NewContext(ctx)
}

// Fork returns a context for a child task that starts with the current tenant.
func (r *Router) Fork(ctx context.Context) context.Context {
	return tenant.Fork(ctx)
}

// SelectTenant makes id the current tenant of ctx's scope.
func (r *Router) SelectTenant(ctx context.Context, id string) error {
	if err := tenant.ValidateID(id); err != nil {
		return err
	}
	return tenant.Set(ctx, id)
}

// SelectTenantByRelation resolves (relationID, qualifier) and selects the
// resulting tenant. The selection is unchanged on error.
func (r *Router) SelectTenantByRelation(ctx context.Context, relationID, qualifier string) (string, error) {
	id, err := r.relations.Resolve(relationID, qualifier)
	if err != nil {
		return "", err
	}
	if err := tenant.Set(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// ClearSelection removes the current tenant from ctx's scope.
func (r *Router) ClearSelection(ctx context.Context) {
	tenant.Clear(ctx)
}

// CurrentTenant returns the tenant a dispatch from ctx would use.
func (r *Router) CurrentTenant(ctx context.Context) (string, bool) {
	id, source := r.dispatch.Target(ctx)
	return id, source != dispatch.SourceNone
}

// CurrentPersistenceContext returns the persistence context of the selected
// tenant, or of the default tenant when nothing is selected.
func (r *Router) CurrentPersistenceContext(ctx context.Context) (resource.PersistenceContext, error) {
	return r.dispatch.Current(ctx)
}

// CurrentConn returns the pooled connection of the current tenant.
func (r *Router) CurrentConn(ctx context.Context) (resource.Conn, error) {
	return r.dispatch.Conn(ctx)
}

// CurrentDB returns a gorm session on the current tenant's persistence context.
func (r *Router) CurrentDB(ctx context.Context) (*gorm.DB, error) {
	return orm.Current(ctx, r.dispatch)
}

// SetDefaultTenant replaces the default tenant; an empty id removes it.
func (r *Router) SetDefaultTenant(id string) {
	r.dispatch.SetDefault(id)
}

// DefaultTenant returns the default tenant, if any.
func (r *Router) DefaultTenant() (string, bool) {
	return r.dispatch.Default()
}

// Lifecycle exposes provisioning for administrative callers.
func (r *Router) Lifecycle() *lifecycle.Manager { return r.lifecycle }

// Relations exposes relation maintenance for administrative callers.
func (r *Router) Relations() *relation.Resolver { return r.relations }

// Store returns the tenant record store.
func (r *Router) Store() tenant.Store { return r.store }

// Stats returns a snapshot of every registered tenant.
func (r *Router) Stats() map[string]lifecycle.TenantStats {
	return r.lifecycle.Stats()
}

// PoolStats reports pool usage per tenant; it feeds metrics.PoolCollector.
func (r *Router) PoolStats() map[string]pg.Stats {
	return r.lifecycle.PoolStats()
}

// Close decommissions every tenant. Connections borrowed from the resource
// table are left open.
func (r *Router) Close(ctx context.Context) error {
	return r.lifecycle.Shutdown(ctx)
}
