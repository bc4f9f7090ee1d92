package dispatch_test

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantdb/pkg/dispatch"
	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/metrics"
	"github.com/dmitrymomot/tenantdb/pkg/registry"
	"github.com/dmitrymomot/tenantdb/pkg/resource"
	"github.com/dmitrymomot/tenantdb/pkg/resource/resourcetest"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

func register(t *testing.T, reg *registry.Registry, id string) *resource.Bundle {
	t.Helper()
	conn := resourcetest.NewConn(id)
	b := resource.NewBundle(id, conn, resourcetest.NewContext(id, conn), true)
	require.NoError(t, reg.Register(id, b))
	return b
}

func TestRouter_Current(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	t1 := register(t, reg, "t1")
	t2 := register(t, reg, "t2")
	router := dispatch.New(reg, dispatch.WithDefault("t1"), dispatch.WithLogger(logger.Discard()))

	t.Run("selected tenant", func(t *testing.T) {
		t.Parallel()
		ctx := tenant.WithTenantID(context.Background(), "t2")
		pc, err := router.Current(ctx)
		require.NoError(t, err)
		assert.Same(t, t2.Context, pc)
	})

	t.Run("falls back to default", func(t *testing.T) {
		t.Parallel()
		pc, err := router.Current(tenant.NewContext(context.Background()))
		require.NoError(t, err)
		assert.Same(t, t1.Context, pc)
	})

	t.Run("unregistered selection is unavailable", func(t *testing.T) {
		t.Parallel()
		ctx := tenant.WithTenantID(context.Background(), "t9")
		_, err := router.Current(ctx)
		assert.ErrorIs(t, err, tenant.ErrTenantUnavailable)
		assert.ErrorIs(t, err, tenant.ErrNotFound)
	})

	t.Run("conn of selected tenant", func(t *testing.T) {
		t.Parallel()
		conn, err := router.Conn(tenant.WithTenantID(context.Background(), "t2"))
		require.NoError(t, err)
		assert.Same(t, t2.Conn, conn)
	})
}

func TestRouter_NoDefault(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	register(t, reg, "t1")
	router := dispatch.New(reg)

	_, ok := router.Default()
	assert.False(t, ok)

	_, err := router.Current(context.Background())
	assert.ErrorIs(t, err, tenant.ErrTenantUnavailable)
	assert.ErrorIs(t, err, dispatch.ErrNoTenantSelected)

	router.SetDefault("t1")
	id, ok := router.Default()
	require.True(t, ok)
	assert.Equal(t, "t1", id)
	_, err = router.Current(context.Background())
	assert.NoError(t, err)

	router.SetDefault("")
	_, err = router.Current(context.Background())
	assert.ErrorIs(t, err, dispatch.ErrNoTenantSelected)
}

func TestRouter_Target(t *testing.T) {
	t.Parallel()

	router := dispatch.New(registry.New(), dispatch.WithDefault("fallback"))

	id, source := router.Target(context.Background())
	assert.Equal(t, "fallback", id)
	assert.Equal(t, dispatch.SourceDefault, source)

	id, source = router.Target(tenant.WithTenantID(context.Background(), "t1"))
	assert.Equal(t, "t1", id)
	assert.Equal(t, dispatch.SourceSelected, source)
}

// A request selects t1, forks a child task that switches to t2, and the
// parent keeps dispatching to t1; after decommission t1 is unavailable.
func TestRouter_ForkedTasksAndDecommission(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	t1 := register(t, reg, "t1")
	t2 := register(t, reg, "t2")
	router := dispatch.New(reg)

	ctx := tenant.NewContext(context.Background())
	require.NoError(t, tenant.Set(ctx, "t1"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		child := tenant.Fork(ctx)

		pc, err := router.Current(child)
		assert.NoError(t, err)
		assert.Same(t, t1.Context, pc)

		assert.NoError(t, tenant.Set(child, "t2"))
		pc, err = router.Current(child)
		assert.NoError(t, err)
		assert.Same(t, t2.Context, pc)
	}()
	wg.Wait()

	pc, err := router.Current(ctx)
	require.NoError(t, err)
	assert.Same(t, t1.Context, pc)

	_, err = reg.Unregister("t1")
	require.NoError(t, err)
	_, err = router.Current(ctx)
	assert.ErrorIs(t, err, tenant.ErrTenantUnavailable)
}

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()

	promReg := prometheus.NewRegistry()
	m, err := metrics.New(promReg)
	require.NoError(t, err)

	reg := registry.New()
	register(t, reg, "t1")
	router := dispatch.New(reg, dispatch.WithMetrics(m))

	_, _ = router.Current(tenant.WithTenantID(context.Background(), "t1"))
	_, _ = router.Current(tenant.WithTenantID(context.Background(), "t9"))
	_, _ = router.Current(context.Background())

	count, err := testutil.GatherAndCount(promReg, "tenantdb_dispatch_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "selected/ok, selected/error, none/error")
}
