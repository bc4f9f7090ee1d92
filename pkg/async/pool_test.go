package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantdb/pkg/async"
	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

func TestPool_RunsWithSubmitterTenant(t *testing.T) {
	t.Parallel()

	pool := async.NewPool(async.WithWorkers(2), async.WithPoolLogger(logger.Discard()))
	defer pool.Close()

	ctx := tenant.WithTenantID(context.Background(), "t1")
	var seen atomic.Value
	f, err := pool.Submit(ctx, func(ctx context.Context) error {
		id, _ := tenant.Current(ctx)
		seen.Store(id)
		return nil
	})
	require.NoError(t, err)

	_, err = f.Await()
	require.NoError(t, err)
	assert.Equal(t, "t1", seen.Load())
}

func TestPool_ClearsScopeOnRelease(t *testing.T) {
	t.Parallel()

	// One worker, so both tasks run on the same scope.
	pool := async.NewPool(async.WithWorkers(1), async.WithPoolLogger(logger.Discard()))
	defer pool.Close()

	first, err := pool.Submit(tenant.WithTenantID(context.Background(), "t1"), func(ctx context.Context) error {
		// The task switches tenants mid-flight and never clears.
		return tenant.Set(ctx, "t2")
	})
	require.NoError(t, err)
	_, err = first.Await()
	require.NoError(t, err)

	var leaked atomic.Value
	leaked.Store("")
	second, err := pool.Submit(context.Background(), func(ctx context.Context) error {
		if id, ok := tenant.Current(ctx); ok {
			leaked.Store(id)
		}
		return nil
	})
	require.NoError(t, err)
	_, err = second.Await()
	require.NoError(t, err)
	assert.Empty(t, leaked.Load(), "a finished task's tenant must not leak into the next")
}

func TestPool_Errors(t *testing.T) {
	t.Parallel()

	pool := async.NewPool(async.WithWorkers(1), async.WithPoolLogger(logger.Discard()))

	boom := errors.New("boom")
	f, err := pool.Submit(context.Background(), func(context.Context) error { return boom })
	require.NoError(t, err)
	_, err = f.Await()
	assert.ErrorIs(t, err, boom)

	f, err = pool.Submit(context.Background(), func(context.Context) error { panic("kaboom") })
	require.NoError(t, err)
	_, err = f.Await()
	assert.ErrorIs(t, err, async.ErrTaskPanicked)

	f, err = pool.Submit(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	_, err = f.Await()
	assert.NoError(t, err, "worker survives a panic")

	pool.Close()
	_, err = pool.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, async.ErrPoolClosed)
	pool.Close()
}

func TestPool_TaskCanceledWithSubmitter(t *testing.T) {
	t.Parallel()

	pool := async.NewPool(async.WithWorkers(1), async.WithPoolLogger(logger.Discard()))
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	f, err := pool.Submit(ctx, func(ctx context.Context) error {
		close(started)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	require.NoError(t, err)

	<-started
	cancel()
	_, err = f.AwaitWithTimeout(time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
