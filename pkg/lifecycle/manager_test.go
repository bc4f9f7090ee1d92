package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantdb/pkg/directory"
	"github.com/dmitrymomot/tenantdb/pkg/lifecycle"
	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/metrics"
	"github.com/dmitrymomot/tenantdb/pkg/registry"
	"github.com/dmitrymomot/tenantdb/pkg/relation"
	"github.com/dmitrymomot/tenantdb/pkg/resource"
	"github.com/dmitrymomot/tenantdb/pkg/resource/resourcetest"
	"github.com/dmitrymomot/tenantdb/pkg/store/memstore"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// connFactory hands out fake connections and remembers them by name.
type connFactory struct {
	mu     sync.Mutex
	conns  map[string]*resourcetest.Conn
	params map[string]tenant.ConnParams
	fail   map[string]error
	calls  atomic.Int32
	delay  time.Duration
}

func newConnFactory() *connFactory {
	return &connFactory{
		conns:  make(map[string]*resourcetest.Conn),
		params: make(map[string]tenant.ConnParams),
		fail:   make(map[string]error),
	}
}

func (f *connFactory) OpenConn(_ context.Context, name string, p tenant.ConnParams) (resource.Conn, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	c := resourcetest.NewConn(name)
	f.conns[name] = c
	f.params[name] = p
	return c, nil
}

func (f *connFactory) conn(name string) *resourcetest.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[name]
}

type contextFactory struct {
	mu       sync.Mutex
	contexts map[string]*resourcetest.Context
	fail     map[string]error
	closeErr error
	// onBuild runs before the context is built, outside the factory lock.
	onBuild func(name string)
}

func newContextFactory() *contextFactory {
	return &contextFactory{
		contexts: make(map[string]*resourcetest.Context),
		fail:     make(map[string]error),
	}
}

func (f *contextFactory) BuildContext(_ context.Context, name string, conn resource.Conn) (resource.PersistenceContext, error) {
	if f.onBuild != nil {
		f.onBuild(name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	c, _ := conn.(*resourcetest.Conn)
	pc := resourcetest.NewContext(name, c)
	pc.CloseErr = f.closeErr
	f.contexts[name] = pc
	return pc, nil
}

func (f *contextFactory) context(name string) *resourcetest.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contexts[name]
}

func direct(id string) tenant.Record {
	return tenant.Record{ID: id, Kind: tenant.KindDirect, Conn: tenant.ConnParams{URL: "postgres://localhost/" + id}, Active: true}
}

type fixture struct {
	reg      *registry.Registry
	store    *memstore.Store
	conns    *connFactory
	contexts *contextFactory
	mgr      *lifecycle.Manager
}

func newFixture(t *testing.T, opts ...lifecycle.Option) *fixture {
	t.Helper()
	f := &fixture{
		reg:      registry.New(),
		store:    memstore.New(),
		conns:    newConnFactory(),
		contexts: newContextFactory(),
	}
	opts = append([]lifecycle.Option{lifecycle.WithLogger(logger.Discard())}, opts...)
	f.mgr = lifecycle.New(f.reg, f.store, f.conns, f.contexts, opts...)
	return f
}

func TestProvision_Direct(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.mgr.Provision(ctx, direct("t1")))

	b, err := f.reg.Lookup("t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", b.Conn.Name(), "pool unique name is the tenant id")
	assert.True(t, b.OwnsConn)
	assert.Same(t, f.contexts.context("t1"), b.Context)
	assert.Equal(t, lifecycle.StateActive, f.mgr.State("t1"))

	rec, ok := f.mgr.Record("t1")
	require.True(t, ok)
	assert.Equal(t, tenant.KindDirect, rec.Kind)

	// Idempotent: a second provision opens nothing new.
	require.NoError(t, f.mgr.Provision(ctx, direct("t1")))
	assert.Equal(t, int32(1), f.conns.calls.Load())
}

func TestProvision_RejectsInactiveAndInvalid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	rec := direct("t1")
	rec.Active = false
	err := f.mgr.Provision(ctx, rec)
	assert.ErrorIs(t, err, lifecycle.ErrInactive)
	assert.ErrorIs(t, err, tenant.ErrTenantUnavailable)

	err = f.mgr.Provision(ctx, tenant.Record{ID: "t2", Kind: tenant.KindDirect, Active: true})
	assert.ErrorIs(t, err, tenant.ErrInvalidRecord)
	assert.Zero(t, f.reg.Len())
}

func TestProvision_FailureLeavesNothingBehind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("connection fails", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.mgr.Provision(ctx, direct("ok")))

		f.conns.fail["bad"] = errors.New("connection refused")
		err := f.mgr.Provision(ctx, direct("bad"))
		assert.ErrorIs(t, err, tenant.ErrResourceUnavailable)

		_, err = f.reg.Lookup("bad")
		assert.ErrorIs(t, err, tenant.ErrNotFound)
		assert.Equal(t, lifecycle.StateUnprovisioned, f.mgr.State("bad"))

		_, err = f.reg.Lookup("ok")
		assert.NoError(t, err, "other tenants unaffected")
	})

	t.Run("persistence context fails", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		f.contexts.fail["t1"] = errors.New("bad mapping")
		err := f.mgr.Provision(ctx, direct("t1"))
		assert.ErrorIs(t, err, tenant.ErrResourceUnavailable)
		assert.False(t, f.reg.Has("t1"))
		assert.Equal(t, 1, f.conns.conn("t1").Closed(), "opened connection is closed again")

		// A later retry succeeds.
		delete(f.contexts.fail, "t1")
		require.NoError(t, f.mgr.Provision(ctx, direct("t1")))
		assert.True(t, f.reg.Has("t1"))
	})

	t.Run("id registered elsewhere", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		other := resourcetest.NewConn("t1")
		require.NoError(t, f.reg.Register("t1", resource.NewBundle("t1", other, resourcetest.NewContext("t1", other), true)))

		err := f.mgr.Provision(ctx, direct("t1"))
		assert.ErrorIs(t, err, tenant.ErrAlreadyExists)
		assert.Equal(t, 1, f.conns.conn("t1").Closed())
		assert.Equal(t, 1, f.contexts.context("t1").Closed())
		assert.Zero(t, other.Closed(), "original bundle untouched")
	})
}

func TestProvision_Directory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := directory.NewStatic(map[string]tenant.ConnParams{
		"jdbc/globex": {URL: "postgres://db-7/globex"},
	})
	f := newFixture(t, lifecycle.WithDirectory(dir))

	rec := tenant.Record{ID: "globex", Kind: tenant.KindDirectory, Name: "jdbc/globex", Active: true}
	require.NoError(t, f.mgr.Provision(ctx, rec))
	assert.Equal(t, "postgres://db-7/globex", f.conns.params["globex"].URL)

	b, err := f.reg.Lookup("globex")
	require.NoError(t, err)
	assert.True(t, b.OwnsConn)

	missing := tenant.Record{ID: "initech", Kind: tenant.KindDirectory, Name: "jdbc/initech", Active: true}
	err = f.mgr.Provision(ctx, missing)
	assert.ErrorIs(t, err, tenant.ErrResourceUnavailable)
	assert.ErrorIs(t, err, directory.ErrNameNotFound)
}

func TestProvision_DirectoryDoesNotFallThroughToTable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	table := resource.NewTable()
	table.Put("jdbc/globex", resourcetest.NewConn("shared"))
	f := newFixture(t, lifecycle.WithDirectory(directory.NewStatic(nil)), lifecycle.WithResourceTable(table))

	rec := tenant.Record{ID: "globex", Kind: tenant.KindDirectory, Name: "jdbc/globex", Active: true}
	err := f.mgr.Provision(ctx, rec)
	assert.ErrorIs(t, err, tenant.ErrResourceUnavailable)
	assert.False(t, f.reg.Has("globex"))

	f2 := newFixture(t)
	err = f2.mgr.Provision(ctx, rec)
	assert.ErrorIs(t, err, lifecycle.ErrNoDirectory)
}

func TestProvision_PreRegistered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	shared := resourcetest.NewConn("reporting")
	table := resource.NewTable()
	table.Put("reportingDataSource", shared)
	f := newFixture(t, lifecycle.WithResourceTable(table))

	rec := tenant.Record{ID: "reports", Kind: tenant.KindPreRegistered, Name: "reportingDataSource", Active: true}
	require.NoError(t, f.mgr.Provision(ctx, rec))

	b, err := f.reg.Lookup("reports")
	require.NoError(t, err)
	assert.Same(t, shared, b.Conn)
	assert.False(t, b.OwnsConn)
	assert.Zero(t, f.conns.calls.Load())

	require.NoError(t, f.mgr.Decommission(ctx, "reports"))
	assert.Zero(t, shared.Closed(), "borrowed connection survives decommission")
	assert.Equal(t, 1, f.contexts.context("reports").Closed())

	err = f.mgr.Provision(ctx, tenant.Record{ID: "x", Kind: tenant.KindPreRegistered, Name: "nope", Active: true})
	assert.ErrorIs(t, err, tenant.ErrResourceUnavailable)
	assert.ErrorIs(t, err, resource.ErrNameNotFound)
}

func TestProvision_ConcurrentCallsShareOneAttempt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.conns.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.mgr.Provision(ctx, direct("t1")))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.conns.calls.Load())
	assert.Equal(t, 1, f.reg.Len())
}

func TestDecommission(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("closes context then connection", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		require.NoError(t, f.mgr.Provision(ctx, direct("t1")))

		b, err := f.reg.Lookup("t1")
		require.NoError(t, err)

		conn := f.conns.conn("t1")
		pc := f.contexts.context("t1")

		require.NoError(t, f.mgr.Decommission(ctx, "t1"))
		_, err = f.reg.Lookup("t1")
		assert.ErrorIs(t, err, tenant.ErrNotFound)
		assert.Equal(t, 1, pc.Closed())
		assert.Equal(t, 1, conn.Closed())
		assert.Same(t, conn, b.Conn)
		assert.Equal(t, lifecycle.StateUnprovisioned, f.mgr.State("t1"))
	})

	t.Run("unknown tenant", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		assert.ErrorIs(t, f.mgr.Decommission(ctx, "ghost"), tenant.ErrNotFound)
	})

	t.Run("close failure does not leak the pool", func(t *testing.T) {
		t.Parallel()

		reg := prometheus.NewRegistry()
		m, err := metrics.New(reg)
		require.NoError(t, err)

		f := newFixture(t, lifecycle.WithMetrics(m))
		f.contexts.closeErr = errors.New("flush failed")
		require.NoError(t, f.mgr.Provision(ctx, direct("t1")))

		require.NoError(t, f.mgr.Decommission(ctx, "t1"))
		assert.Equal(t, 1, f.conns.conn("t1").Closed())
		assert.False(t, f.reg.Has("t1"))

		count, err := testutil.GatherAndCount(reg, "tenantdb_teardown_errors_total")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("reprovision after decommission", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		require.NoError(t, f.mgr.Provision(ctx, direct("t1")))
		first, err := f.reg.Lookup("t1")
		require.NoError(t, err)
		require.NoError(t, f.mgr.Decommission(ctx, "t1"))
		require.NoError(t, f.mgr.Provision(ctx, direct("t1")))

		second, err := f.reg.Lookup("t1")
		require.NoError(t, err)
		assert.NotEqual(t, first.InstanceID, second.InstanceID)
	})
}

func TestDecommission_DuringProvisioning(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("refused while provisioning", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		var midErr error
		f.contexts.onBuild = func(name string) {
			midErr = f.mgr.Decommission(ctx, name)
		}
		require.NoError(t, f.mgr.Provision(ctx, direct("t1")))

		assert.ErrorIs(t, midErr, lifecycle.ErrBusy)
		assert.True(t, f.reg.Has("t1"))
		assert.Equal(t, lifecycle.StateActive, f.mgr.State("t1"))

		f.contexts.onBuild = nil
		require.NoError(t, f.mgr.Decommission(ctx, "t1"))
		require.NoError(t, f.mgr.Provision(ctx, direct("t1")))
		assert.True(t, f.reg.Has("t1"))
	})

	t.Run("active without bundle is provisioned again", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		require.NoError(t, f.mgr.Provision(ctx, direct("t1")))
		_, err := f.reg.Unregister("t1")
		require.NoError(t, err)
		require.Equal(t, lifecycle.StateActive, f.mgr.State("t1"))

		require.NoError(t, f.mgr.Provision(ctx, direct("t1")))
		assert.True(t, f.reg.Has("t1"))
		assert.Equal(t, lifecycle.StateActive, f.mgr.State("t1"))
		assert.Equal(t, int32(2), f.conns.calls.Load())
	})

	t.Run("decommission of a stale active tenant resets its state", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		require.NoError(t, f.mgr.Provision(ctx, direct("t1")))
		_, err := f.reg.Unregister("t1")
		require.NoError(t, err)

		assert.ErrorIs(t, f.mgr.Decommission(ctx, "t1"), tenant.ErrNotFound)
		assert.Equal(t, lifecycle.StateUnprovisioned, f.mgr.State("t1"))
	})
}

func TestDecommission_ConcurrentLookupsSeeWholeBundles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				b, err := f.reg.Lookup("t1")
				if err != nil {
					assert.ErrorIs(t, err, tenant.ErrNotFound)
					continue
				}
				assert.NotNil(t, b.Conn)
				assert.NotNil(t, b.Context)
			}
		}()
	}

	for range 50 {
		require.NoError(t, f.mgr.Provision(ctx, direct("t1")))
		require.NoError(t, f.mgr.Decommission(ctx, "t1"))
		_, err := f.reg.Lookup("t1")
		assert.ErrorIs(t, err, tenant.ErrNotFound)
	}
	close(done)
	wg.Wait()
}

func TestReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	resolver := relation.NewResolver(f.store, relation.WithLogger(logger.Discard()))

	var elected atomic.Value
	f.mgr = lifecycle.New(f.reg, f.store, f.conns, f.contexts,
		lifecycle.WithLogger(logger.Discard()),
		lifecycle.WithRelations(resolver),
		lifecycle.WithDefaultTenantHandler(func(id string) { elected.Store(id) }),
	)

	t1 := direct("t1")
	t1.Default = true
	inactive := direct("off")
	inactive.Active = false
	bean := tenant.Record{ID: "bean", Kind: tenant.KindPreRegistered, Name: "ds", Active: true}
	require.NoError(t, f.store.Seed(ctx,
		[]tenant.Record{t1, direct("t2"), direct("broken"), inactive, bean},
		[]tenant.Relation{{RelationID: "R1", TenantID: "t1"}, {RelationID: "R1", Qualifier: "pkgX", TenantID: "t2"}},
	))
	f.conns.fail["broken"] = errors.New("no route to host")

	err := f.mgr.Reload(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, tenant.ErrResourceUnavailable)
	assert.Contains(t, err.Error(), "broken")

	assert.ElementsMatch(t, []string{"t1", "t2"}, f.reg.IDs(), "only active direct tenants; failures do not stop the rest")
	assert.Equal(t, "t1", elected.Load())

	id, err := resolver.Resolve("R1", "pkgX")
	require.NoError(t, err)
	assert.Equal(t, "t2", id)
}

func TestProvisionPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	table := resource.NewTable()
	f := newFixture(t, lifecycle.WithResourceTable(table))

	bean := tenant.Record{ID: "bean", Kind: tenant.KindPreRegistered, Name: "ds", Active: true}
	require.NoError(t, f.store.Seed(ctx, []tenant.Record{direct("t1"), bean}, nil))
	require.NoError(t, f.mgr.Reload(ctx))
	assert.False(t, f.reg.Has("bean"))

	n, err := f.mgr.ProvisionPending(ctx)
	assert.Error(t, err, "resource not registered yet")
	assert.Zero(t, n)

	table.Put("ds", resourcetest.NewConn("ds"))
	n, err = f.mgr.ProvisionPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.reg.Has("bean"))
}

func TestShutdown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.mgr.Provision(ctx, direct("t1")))
	require.NoError(t, f.mgr.Provision(ctx, direct("t2")))
	f.conns.conn("t2").CloseErr = errors.New("socket closed")

	err := f.mgr.Shutdown(ctx)
	assert.ErrorIs(t, err, lifecycle.ErrTeardown)
	assert.Zero(t, f.reg.Len())
	assert.Equal(t, 1, f.conns.conn("t1").Closed())
	assert.Equal(t, 1, f.conns.conn("t2").Closed())
	assert.Equal(t, lifecycle.StateUnprovisioned, f.mgr.State("t1"))

	assert.NoError(t, f.mgr.Shutdown(ctx), "nothing left to close")
}

func TestStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.mgr.Provision(ctx, direct("t1")))
	stats := f.mgr.Stats()
	require.Contains(t, stats, "t1")
	assert.Equal(t, "direct", stats["t1"].Kind)
	assert.Equal(t, lifecycle.StateActive, stats["t1"].State)
	assert.Nil(t, stats["t1"].Pool, "fake connections report no pool stats")
	assert.Empty(t, f.mgr.PoolStats())
}
