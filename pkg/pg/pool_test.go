package pg_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantdb/pkg/pg"
)

// newLazyPool builds a pool that never dials: MinConns is zero and nothing acquires.
func newLazyPool(t *testing.T) *pg.Pool {
	t.Helper()
	raw, err := pgxpool.New(context.Background(), "postgres://localhost:1/none?pool_min_conns=0")
	require.NoError(t, err)
	return pg.NewPool("acme", raw)
}

func TestPool_SQL(t *testing.T) {
	t.Parallel()

	t.Run("returns the same view until closed", func(t *testing.T) {
		t.Parallel()

		p := newLazyPool(t)
		first := p.SQL()
		require.NotNil(t, first)
		assert.Same(t, first, p.SQL())

		require.NoError(t, p.Close())
		assert.Nil(t, p.SQL())
		assert.NoError(t, p.Close())
	})

	t.Run("concurrent SQL and Close", func(t *testing.T) {
		t.Parallel()

		p := newLazyPool(t)
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = p.SQL()
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Close()
		}()
		wg.Wait()

		assert.Nil(t, p.SQL())
	})
}
