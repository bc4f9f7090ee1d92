package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantdb/pkg/async"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

func TestAsync(t *testing.T) {
	t.Parallel()

	f := async.Async(context.Background(), 21, func(_ context.Context, n int) (int, error) {
		time.Sleep(10 * time.Millisecond)
		return n * 2, nil
	})
	assert.False(t, f.IsComplete())

	got, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.True(t, f.IsComplete())
}

func TestAsync_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := async.Async(ctx, 0, func(context.Context, int) (int, error) {
		called = true
		return 0, nil
	}).Await()
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestAsync_ForksTenantScope(t *testing.T) {
	t.Parallel()

	ctx := tenant.NewContext(context.Background())
	require.NoError(t, tenant.Set(ctx, "t1"))

	f := async.Async(ctx, "t2", func(ctx context.Context, next string) (string, error) {
		inherited, _ := tenant.Current(ctx)
		if err := tenant.Set(ctx, next); err != nil {
			return "", err
		}
		return inherited, nil
	})

	inherited, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "t1", inherited)

	id, _ := tenant.Current(ctx)
	assert.Equal(t, "t1", id, "child selection must not reach the parent")
}

func TestAwaitWithTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	f := async.Async(context.Background(), 0, func(context.Context, int) (int, error) {
		<-release
		return 1, nil
	})

	_, err := f.AwaitWithTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, async.ErrTimeout)

	close(release)
	got, err := f.AwaitWithTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestWaitAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	square := func(_ context.Context, n int) (int, error) { return n * n, nil }
	results, err := async.WaitAll(
		async.Async(ctx, 1, square),
		async.Async(ctx, 2, square),
		async.Async(ctx, 3, square),
	)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9}, results)

	boom := errors.New("boom")
	_, err = async.WaitAll(
		async.Async(ctx, 1, square),
		async.Async(ctx, 2, func(context.Context, int) (int, error) { return 0, boom }),
	)
	assert.ErrorIs(t, err, boom)
}

func TestWaitAny(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, _, err := async.WaitAny[int]()
	assert.ErrorIs(t, err, async.ErrNoFutures)

	slow := async.Async(ctx, 0, func(context.Context, int) (int, error) {
		time.Sleep(200 * time.Millisecond)
		return 1, nil
	})
	fast := async.Async(ctx, 0, func(context.Context, int) (int, error) {
		return 2, nil
	})

	idx, got, err := async.WaitAny(slow, fast)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 2, got)
}
