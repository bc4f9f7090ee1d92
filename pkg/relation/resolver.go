package relation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// Resolver keeps the durable relation records and the in-memory Index in step.
// Mutations are serialized by one writer mutex held across the store write and
// the index swap; Resolve never takes it.
type Resolver struct {
	store  tenant.Store
	index  *Index
	logger *slog.Logger
	mu     sync.Mutex
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithIndex makes the resolver operate on an existing index.
func WithIndex(idx *Index) Option {
	return func(r *Resolver) {
		if idx != nil {
			r.index = idx
		}
	}
}

// NewResolver creates a resolver over store. The index starts empty; call Rebuild to load it.
func NewResolver(store tenant.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		index:  NewIndex(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps (relationID, qualifier) to a tenant id. See Index.Resolve.
func (r *Resolver) Resolve(relationID, qualifier string) (string, error) {
	return r.index.Resolve(relationID, qualifier)
}

// Index returns the underlying index.
func (r *Resolver) Index() *Index {
	return r.index
}

// Rebuild loads every relation record and swaps the index in one step.
func (r *Resolver) Rebuild(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rels, err := r.store.ListRelations(ctx)
	if err != nil {
		return errors.Join(ErrRebuildFailed, err)
	}
	r.index.Load(rels)

	r.logger.InfoContext(ctx, "relation index rebuilt", logger.Count(len(rels)))
	return nil
}

// AddRelation inserts rel into the store and then into the index.
// A (relationID, qualifier) pair that already exists fails with tenant.ErrAlreadyExists.
// The referenced tenant must exist in the store.
func (r *Resolver) AddRelation(ctx context.Context, rel tenant.Relation) (tenant.Relation, error) {
	if err := rel.Validate(); err != nil {
		return tenant.Relation{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkTenant(ctx, rel.TenantID); err != nil {
		return tenant.Relation{}, err
	}
	if _, err := r.store.FindRelation(ctx, rel.RelationID, rel.Qualifier); err == nil {
		return tenant.Relation{}, tenant.ErrAlreadyExists
	} else if !errors.Is(err, tenant.ErrNotFound) {
		return tenant.Relation{}, err
	}

	saved, err := r.store.InsertRelation(ctx, rel)
	if err != nil {
		return tenant.Relation{}, err
	}
	r.index.Put(saved.RelationID, saved.Qualifier, saved.TenantID)

	r.logger.InfoContext(ctx, "relation added",
		logger.RelationID(saved.RelationID, saved.Qualifier),
		logger.TenantID(saved.TenantID),
	)
	return saved, nil
}

// RemoveRelation deletes the relation with surrogate id from the store and the index.
func (r *Resolver) RemoveRelation(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rel, err := r.store.GetRelation(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteRelation(ctx, id); err != nil {
		return err
	}
	r.index.Remove(rel.RelationID, rel.Qualifier)

	r.logger.InfoContext(ctx, "relation removed",
		logger.RelationID(rel.RelationID, rel.Qualifier),
		logger.TenantID(rel.TenantID),
	)
	return nil
}

// UpdateRelation replaces the relation with surrogate id rel.ID.
// The index drops the old key and inserts the new mapping in one swap; the
// entry is never edited in place.
func (r *Resolver) UpdateRelation(ctx context.Context, rel tenant.Relation) error {
	if err := rel.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, err := r.store.GetRelation(ctx, rel.ID)
	if err != nil {
		return err
	}
	if err := r.checkTenant(ctx, rel.TenantID); err != nil {
		return err
	}
	if old.Key() != rel.Key() {
		if other, err := r.store.FindRelation(ctx, rel.RelationID, rel.Qualifier); err == nil && other.ID != rel.ID {
			return tenant.ErrAlreadyExists
		} else if err != nil && !errors.Is(err, tenant.ErrNotFound) {
			return err
		}
	}

	if err := r.store.UpdateRelation(ctx, rel); err != nil {
		return err
	}
	r.index.Replace(old.Key(), rel)

	r.logger.InfoContext(ctx, "relation updated",
		logger.RelationID(rel.RelationID, rel.Qualifier),
		logger.TenantID(rel.TenantID),
	)
	return nil
}

// RemoveTenant deletes tenant id from the store together with every relation
// that references it, then drops those relations from the index. It holds the
// writer lock throughout, so no relation can be added to id in between.
// It returns the relations that were removed.
func (r *Resolver) RemoveTenant(ctx context.Context, id string) ([]tenant.Relation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rels, err := r.store.FindRelations(ctx, tenant.RelationFilter{TenantID: id})
	if err != nil {
		return nil, err
	}

	var removed []tenant.Relation
	defer func() {
		for _, rel := range removed {
			r.index.Remove(rel.RelationID, rel.Qualifier)
		}
	}()

	for _, rel := range rels {
		if err := r.store.DeleteRelation(ctx, rel.ID); err != nil && !errors.Is(err, tenant.ErrNotFound) {
			return removed, err
		}
		removed = append(removed, rel)
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return removed, err
	}

	r.logger.InfoContext(ctx, "tenant removed with its relations",
		logger.TenantID(id),
		logger.Count(len(removed)),
	)
	return removed, nil
}

// Entries lists the index content, for debugging and the admin surface.
func (r *Resolver) Entries() []tenant.Relation {
	return r.index.Entries()
}

func (r *Resolver) checkTenant(ctx context.Context, id string) error {
	ok, err := r.store.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Join(ErrUnknownTenant, tenant.ErrNotFound)
	}
	return nil
}
