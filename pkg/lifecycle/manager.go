package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/tenantdb/pkg/directory"
	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/metrics"
	"github.com/dmitrymomot/tenantdb/pkg/pg"
	"github.com/dmitrymomot/tenantdb/pkg/registry"
	"github.com/dmitrymomot/tenantdb/pkg/relation"
	"github.com/dmitrymomot/tenantdb/pkg/resource"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// ConnFactory opens a tenant connection under a unique name. *pg.Factory implements it.
type ConnFactory interface {
	OpenConn(ctx context.Context, name string, params tenant.ConnParams) (resource.Conn, error)
}

// ContextFactory builds a persistence context on a connection. *orm.Factory implements it.
type ContextFactory interface {
	BuildContext(ctx context.Context, name string, conn resource.Conn) (resource.PersistenceContext, error)
}

// Manager provisions and decommissions tenants and publishes their bundles
// into the registry. Resources are opened before and closed after the
// registry lock; a bundle is registered only once complete.
type Manager struct {
	registry  *registry.Registry
	store     tenant.Store
	conns     ConnFactory
	contexts  ContextFactory
	relations *relation.Resolver
	directory directory.Directory
	table     *resource.Table
	metrics   *metrics.Metrics
	logger    *slog.Logger
	onDefault func(id string)

	reloadConcurrency int

	states *tracker
	group  singleflight.Group
}

// New creates a manager publishing into reg.
func New(reg *registry.Registry, store tenant.Store, conns ConnFactory, contexts ContextFactory, opts ...Option) *Manager {
	m := &Manager{
		registry:          reg,
		store:             store,
		conns:             conns,
		contexts:          contexts,
		logger:            slog.Default(),
		reloadConcurrency: 4,
		states:            newTracker(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("lifecycle"))
	return m
}

// State returns the provisioning state of id.
func (m *Manager) State(id string) State {
	return m.states.get(id)
}

// Record returns the record an active tenant was provisioned from.
func (m *Manager) Record(id string) (tenant.Record, bool) {
	return m.states.record(id)
}

// Provision opens the tenant's connection and persistence context and
// registers them. It is a no-op for an active tenant whose bundle is
// still registered. Concurrent calls for
// the same id share one attempt. On failure nothing is registered and every
// opened resource is closed.
func (m *Manager) Provision(ctx context.Context, rec tenant.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if !rec.Active {
		return errors.Join(tenant.ErrTenantUnavailable, ErrInactive)
	}

	_, err, _ := m.group.Do(rec.ID, func() (any, error) {
		return nil, m.provision(ctx, rec)
	})
	return err
}

func (m *Manager) provision(ctx context.Context, rec tenant.Record) error {
	if m.states.get(rec.ID) == StateActive {
		if m.registry.Has(rec.ID) {
			return nil
		}
		// Active without a bundle: the registry entry was removed outside
		// Decommission. Start over from unprovisioned.
		m.states.drop(rec.ID, StateActive)
		m.logger.WarnContext(ctx, "tenant active but not registered, reprovisioning", logger.TenantID(rec.ID))
	}
	if _, err := m.states.fire(rec.ID, EventProvision, nil); err != nil {
		return err
	}

	start := time.Now()
	err := m.build(ctx, rec)
	m.metrics.Provisioned(rec.Kind.String(), time.Since(start), err)

	if err != nil {
		_, _ = m.states.fire(rec.ID, EventFailed, nil)
		m.logger.ErrorContext(ctx, "tenant provisioning failed",
			logger.TenantID(rec.ID),
			logger.Kind(rec.Kind.String()),
			logger.Error(err),
		)
		return err
	}

	_, _ = m.states.fire(rec.ID, EventProvisioned, &rec)
	m.logger.InfoContext(ctx, "tenant provisioned",
		logger.TenantID(rec.ID),
		logger.Kind(rec.Kind.String()),
		logger.Duration(time.Since(start)),
	)
	return nil
}

// build opens both handles and registers the bundle, undoing everything on failure.
func (m *Manager) build(ctx context.Context, rec tenant.Record) error {
	conn, owns, err := m.openConn(ctx, rec)
	if err != nil {
		return err
	}

	pc, err := m.contexts.BuildContext(ctx, rec.ID, conn)
	if err != nil {
		if owns {
			m.closeQuietly(ctx, rec.ID, "close_conn", conn.Close)
		}
		return errors.Join(tenant.ErrResourceUnavailable, err)
	}

	b := resource.NewBundle(rec.ID, conn, pc, owns)
	if err := m.registry.Register(rec.ID, b); err != nil {
		m.closeQuietly(ctx, rec.ID, "close_context", pc.Close)
		if owns {
			m.closeQuietly(ctx, rec.ID, "close_conn", conn.Close)
		}
		return err
	}
	return nil
}

// openConn dispatches on the record kind. Kinds are mutually exclusive.
// The returned flag is false for borrowed connections.
func (m *Manager) openConn(ctx context.Context, rec tenant.Record) (resource.Conn, bool, error) {
	switch rec.Kind {
	case tenant.KindDirect:
		conn, err := m.conns.OpenConn(ctx, rec.ID, rec.Conn)
		if err != nil {
			return nil, false, errors.Join(tenant.ErrResourceUnavailable, err)
		}
		return conn, true, nil

	case tenant.KindDirectory:
		if m.directory == nil {
			return nil, false, errors.Join(tenant.ErrResourceUnavailable, ErrNoDirectory)
		}
		params, err := m.directory.Lookup(ctx, rec.Name)
		if err != nil {
			return nil, false, errors.Join(tenant.ErrResourceUnavailable, err)
		}
		conn, err := m.conns.OpenConn(ctx, rec.ID, params)
		if err != nil {
			return nil, false, errors.Join(tenant.ErrResourceUnavailable, err)
		}
		return conn, true, nil

	case tenant.KindPreRegistered:
		if m.table == nil {
			return nil, false, errors.Join(tenant.ErrResourceUnavailable, ErrNoResourceTable)
		}
		conn, err := m.table.Get(rec.Name)
		if err != nil {
			return nil, false, errors.Join(tenant.ErrResourceUnavailable, err)
		}
		return conn, false, nil

	default:
		return nil, false, fmt.Errorf("%w: unknown kind %q", tenant.ErrInvalidRecord, rec.Kind)
	}
}

// Decommission unregisters id and then closes its persistence context and,
// when owned, its connection. Close failures are logged and counted and do
// not stop the remaining steps. It returns tenant.ErrNotFound if id is not
// registered, and a *TransitionError matching ErrBusy while id is being
// provisioned or decommissioned.
func (m *Manager) Decommission(ctx context.Context, id string) error {
	tracked := true
	if _, err := m.states.fire(id, EventDecommission, nil); err != nil {
		var te *TransitionError
		if !errors.As(err, &te) || te.From != StateUnprovisioned {
			return err
		}
		tracked = false
	}

	b, err := m.registry.Unregister(id)
	if err != nil {
		if tracked {
			_, _ = m.states.fire(id, EventDecommissioned, nil)
		}
		return err
	}
	if !tracked {
		// Registered outside of Provision; there is no state to walk.
		m.logger.WarnContext(ctx, "decommissioning untracked tenant", logger.TenantID(id))
	}

	m.teardown(ctx, b)
	m.metrics.Decommissioned()

	if tracked {
		_, _ = m.states.fire(id, EventDecommissioned, nil)
	}
	m.logger.InfoContext(ctx, "tenant decommissioned", logger.TenantID(id))
	return nil
}

// teardown closes the context first, then an owned connection, and returns
// the close errors it logged.
func (m *Manager) teardown(ctx context.Context, b *resource.Bundle) []error {
	var errs []error
	if err := m.closeQuietly(ctx, b.TenantID, "close_context", b.Context.Close); err != nil {
		errs = append(errs, err)
	}
	if b.OwnsConn {
		if err := m.closeQuietly(ctx, b.TenantID, "close_conn", b.Conn.Close); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (m *Manager) closeQuietly(ctx context.Context, id, step string, closeFn func() error) error {
	err := closeFn()
	if err != nil {
		m.metrics.TeardownError(step)
		m.logger.ErrorContext(ctx, "tenant teardown step failed",
			logger.TenantID(id),
			logger.Step(step),
			logger.Error(err),
		)
	}
	return err
}

// ElectDefault hands id to the default tenant handler, if one is configured.
// Reload does this for the stored default flag; administrative writes call it
// so a new default takes effect without a reload.
func (m *Manager) ElectDefault(id string) {
	if m.onDefault != nil && id != "" {
		m.onDefault(id)
	}
}

// Reload reads active tenants and all relations from the store, rebuilds the
// relation index, elects the default tenant and provisions every active
// direct tenant. A failing tenant does not stop the others; all failures are
// returned joined.
func (m *Manager) Reload(ctx context.Context) error {
	records, err := m.store.ListActive(ctx)
	if err != nil {
		return err
	}

	var errs []error
	if m.relations != nil {
		if err := m.relations.Rebuild(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if m.onDefault != nil {
		id, err := tenant.ValidateDefaults(records)
		if err != nil {
			errs = append(errs, err)
		} else if id != "" {
			m.onDefault(id)
		}
	}

	direct := make([]tenant.Record, 0, len(records))
	for _, rec := range records {
		if rec.Kind == tenant.KindDirect {
			direct = append(direct, rec)
		}
	}
	errs = append(errs, m.provisionAll(ctx, direct)...)

	m.logger.InfoContext(ctx, "tenants reloaded",
		logger.Count(len(direct)),
		slog.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

// ProvisionPending provisions active directory and pre-registered tenants
// that are not registered yet. Call it once their naming service entries or
// resource table connections are available. It returns how many tenants
// became active.
func (m *Manager) ProvisionPending(ctx context.Context) (int, error) {
	records, err := m.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	pending := make([]tenant.Record, 0)
	for _, rec := range records {
		if rec.Kind != tenant.KindDirect && !m.registry.Has(rec.ID) {
			pending = append(pending, rec)
		}
	}

	errs := m.provisionAll(ctx, pending)
	return len(pending) - len(errs), errors.Join(errs...)
}

func (m *Manager) provisionAll(ctx context.Context, records []tenant.Record) []error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(max(m.reloadConcurrency, 1))

	for _, rec := range records {
		g.Go(func() error {
			if err := m.Provision(ctx, rec); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("tenant %s: %w", rec.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Shutdown decommissions every registered tenant. Close failures are
// returned joined with ErrTeardown after all tenants were processed.
func (m *Manager) Shutdown(ctx context.Context) error {
	bundles := m.registry.Drain()

	var errs []error
	for id, b := range bundles {
		if closeErrs := m.teardown(ctx, b); len(closeErrs) > 0 {
			errs = append(errs, fmt.Errorf("tenant %s: %w", id, errors.Join(closeErrs...)))
		}
		m.metrics.Decommissioned()
	}
	m.states.reset()

	m.logger.InfoContext(ctx, "lifecycle shut down", logger.Count(len(bundles)))
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrTeardown}, errs...)...)
	}
	return nil
}

// TenantStats describes one registered tenant.
type TenantStats struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind,omitempty"`
	State      State     `json:"state"`
	InstanceID string    `json:"instance_id"`
	Since      time.Time `json:"since"`
	OwnsConn   bool      `json:"owns_conn"`
	Pool       *pg.Stats `json:"pool,omitempty"`
}

// Stats returns a snapshot of every registered tenant.
func (m *Manager) Stats() map[string]TenantStats {
	snap := m.registry.Snapshot()
	out := make(map[string]TenantStats, len(snap))
	for id, b := range snap {
		s := TenantStats{
			ID:         id,
			State:      m.states.get(id),
			InstanceID: b.InstanceID.String(),
			Since:      b.CreatedAt,
			OwnsConn:   b.OwnsConn,
		}
		if rec, ok := m.states.record(id); ok {
			s.Kind = rec.Kind.String()
		}
		if p, ok := b.Conn.(interface{ Stats() pg.Stats }); ok {
			ps := p.Stats()
			s.Pool = &ps
		}
		out[id] = s
	}
	return out
}

// PoolStats reports pool usage of registered tenants whose connection is a pg pool.
func (m *Manager) PoolStats() map[string]pg.Stats {
	out := make(map[string]pg.Stats)
	for id, s := range m.Stats() {
		if s.Pool != nil {
			out[id] = *s.Pool
		}
	}
	return out
}
