package relation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/relation"
	"github.com/dmitrymomot/tenantdb/pkg/store/memstore"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

func newStore(t *testing.T, ids ...string) *memstore.Store {
	t.Helper()

	s := memstore.New()
	for _, id := range ids {
		require.NoError(t, s.Insert(context.Background(), tenant.Record{
			ID:     id,
			Kind:   tenant.KindDirect,
			Conn:   tenant.ConnParams{URL: "postgres://localhost/" + id},
			Active: true,
		}))
	}
	return s
}

// failingStore rejects relation writes.
type failingStore struct {
	*memstore.Store
	err error
}

func (f failingStore) InsertRelation(context.Context, tenant.Relation) (tenant.Relation, error) {
	return tenant.Relation{}, f.err
}

func (f failingStore) UpdateRelation(context.Context, tenant.Relation) error { return f.err }

func (f failingStore) DeleteRelation(context.Context, int64) error { return f.err }

func TestResolver_AddAndResolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := relation.NewResolver(newStore(t, "T1", "T2"), relation.WithLogger(logger.Discard()))

	_, err := r.AddRelation(ctx, tenant.Relation{RelationID: "R1", TenantID: "T1"})
	require.NoError(t, err)

	id, err := r.Resolve("R1", "")
	require.NoError(t, err)
	assert.Equal(t, "T1", id)

	_, err = r.AddRelation(ctx, tenant.Relation{RelationID: "R1", Qualifier: "pkgA", TenantID: "T2"})
	require.NoError(t, err)

	id, err = r.Resolve("R1", "pkgA")
	require.NoError(t, err)
	assert.Equal(t, "T2", id)

	id, err = r.Resolve("R1", "pkgB")
	require.NoError(t, err)
	assert.Equal(t, "T1", id)

	_, err = r.AddRelation(ctx, tenant.Relation{RelationID: "R1", Qualifier: "pkgA", TenantID: "T1"})
	assert.ErrorIs(t, err, tenant.ErrAlreadyExists)

	_, err = r.AddRelation(ctx, tenant.Relation{RelationID: "R9", TenantID: "ghost"})
	assert.ErrorIs(t, err, relation.ErrUnknownTenant)
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	_, err = r.AddRelation(ctx, tenant.Relation{TenantID: "T1"})
	assert.ErrorIs(t, err, tenant.ErrInvalidRelation)
}

func TestResolver_RemoveAndUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newStore(t, "T1", "T2")
	r := relation.NewResolver(store, relation.WithLogger(logger.Discard()))

	base, err := r.AddRelation(ctx, tenant.Relation{RelationID: "R1", TenantID: "T1"})
	require.NoError(t, err)
	qualified, err := r.AddRelation(ctx, tenant.Relation{RelationID: "R1", Qualifier: "pkgA", TenantID: "T2"})
	require.NoError(t, err)

	qualified.Qualifier = "pkgB"
	require.NoError(t, r.UpdateRelation(ctx, qualified))

	id, err := r.Resolve("R1", "pkgA")
	require.NoError(t, err)
	assert.Equal(t, "T1", id, "old key no longer matches")
	id, err = r.Resolve("R1", "pkgB")
	require.NoError(t, err)
	assert.Equal(t, "T2", id)

	require.NoError(t, r.RemoveRelation(ctx, base.ID))
	_, err = r.Resolve("R1", "")
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	assert.ErrorIs(t, r.RemoveRelation(ctx, base.ID), tenant.ErrNotFound)

	qualified.Qualifier = ""
	qualified.TenantID = "ghost"
	assert.ErrorIs(t, r.UpdateRelation(ctx, qualified), relation.ErrUnknownTenant)
}

func TestResolver_StoreFailureLeavesIndexUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	base := newStore(t, "T1", "T2")
	saved, err := base.InsertRelation(ctx, tenant.Relation{RelationID: "R1", TenantID: "T1"})
	require.NoError(t, err)

	boom := errors.New("store down")
	r := relation.NewResolver(failingStore{Store: base, err: boom}, relation.WithLogger(logger.Discard()))
	require.NoError(t, r.Rebuild(ctx))

	_, err = r.AddRelation(ctx, tenant.Relation{RelationID: "R2", TenantID: "T2"})
	assert.ErrorIs(t, err, boom)
	_, err = r.Resolve("R2", "")
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	saved.TenantID = "T2"
	assert.ErrorIs(t, r.UpdateRelation(ctx, saved), boom)
	assert.ErrorIs(t, r.RemoveRelation(ctx, saved.ID), boom)

	id, err := r.Resolve("R1", "")
	require.NoError(t, err)
	assert.Equal(t, "T1", id)
}

func TestResolver_Rebuild(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newStore(t, "T1", "T2")
	_, err := store.InsertRelation(ctx, tenant.Relation{RelationID: "R1", TenantID: "T1"})
	require.NoError(t, err)
	_, err = store.InsertRelation(ctx, tenant.Relation{RelationID: "R1", Qualifier: "pkgX", TenantID: "T2"})
	require.NoError(t, err)

	r := relation.NewResolver(store, relation.WithLogger(logger.Discard()))
	_, err = r.Resolve("R1", "")
	assert.ErrorIs(t, err, tenant.ErrNotFound, "index starts empty")

	require.NoError(t, r.Rebuild(ctx))
	id, err := r.Resolve("R1", "pkgX")
	require.NoError(t, err)
	assert.Equal(t, "T2", id)
	assert.Len(t, r.Entries(), 2)
}

func TestResolver_RemoveTenant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("takes the tenant's relations with it", func(t *testing.T) {
		t.Parallel()

		store := newStore(t, "T1", "T2")
		r := relation.NewResolver(store, relation.WithLogger(logger.Discard()))
		_, err := r.AddRelation(ctx, tenant.Relation{RelationID: "R1", TenantID: "T1"})
		require.NoError(t, err)
		_, err = r.AddRelation(ctx, tenant.Relation{RelationID: "R1", Qualifier: "pkgX", TenantID: "T1"})
		require.NoError(t, err)
		_, err = r.AddRelation(ctx, tenant.Relation{RelationID: "R2", TenantID: "T2"})
		require.NoError(t, err)

		removed, err := r.RemoveTenant(ctx, "T1")
		require.NoError(t, err)
		assert.Len(t, removed, 2)

		_, err = r.Resolve("R1", "")
		assert.ErrorIs(t, err, tenant.ErrNotFound)
		_, err = r.Resolve("R1", "pkgX")
		assert.ErrorIs(t, err, tenant.ErrNotFound)
		id, err := r.Resolve("R2", "")
		require.NoError(t, err)
		assert.Equal(t, "T2", id)

		exists, err := store.Exists(ctx, "T1")
		require.NoError(t, err)
		assert.False(t, exists)
		rels, err := store.ListRelations(ctx)
		require.NoError(t, err)
		assert.Len(t, rels, 1)

		_, err = r.AddRelation(ctx, tenant.Relation{RelationID: "R3", TenantID: "T1"})
		assert.ErrorIs(t, err, relation.ErrUnknownTenant)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		t.Parallel()

		r := relation.NewResolver(newStore(t), relation.WithLogger(logger.Discard()))
		_, err := r.RemoveTenant(ctx, "ghost")
		assert.ErrorIs(t, err, tenant.ErrNotFound)
	})

	t.Run("store failure keeps tenant and index", func(t *testing.T) {
		t.Parallel()

		base := newStore(t, "T1")
		_, err := base.InsertRelation(ctx, tenant.Relation{RelationID: "R1", TenantID: "T1"})
		require.NoError(t, err)

		boom := errors.New("store down")
		r := relation.NewResolver(failingStore{Store: base, err: boom}, relation.WithLogger(logger.Discard()))
		require.NoError(t, r.Rebuild(ctx))

		_, err = r.RemoveTenant(ctx, "T1")
		assert.ErrorIs(t, err, boom)

		id, err := r.Resolve("R1", "")
		require.NoError(t, err)
		assert.Equal(t, "T1", id)
		exists, err := base.Exists(ctx, "T1")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}
