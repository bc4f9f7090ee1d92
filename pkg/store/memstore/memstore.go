// Package memstore is an in-memory tenant.Store. It backs tests and the
// static-tenants mode, where records come from a YAML file at startup.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// Store keeps tenant and relation records in maps guarded by one RWMutex.
// Relations must reference a stored tenant; deleting a tenant deletes its relations.
type Store struct {
	mu        sync.RWMutex
	tenants   map[string]tenant.Record
	relations map[int64]tenant.Relation
	nextID    int64
	now       func() time.Time
}

var _ tenant.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		tenants:   make(map[string]tenant.Record),
		relations: make(map[int64]tenant.Relation),
		now:       time.Now,
	}
}

// Seed inserts records and relations, failing on the first invalid or duplicate entry.
func (s *Store) Seed(ctx context.Context, records []tenant.Record, relations []tenant.Relation) error {
	for _, r := range records {
		if err := s.Insert(ctx, r); err != nil {
			return err
		}
	}
	for _, rel := range relations {
		if _, err := s.InsertRelation(ctx, rel); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListActive(_ context.Context) ([]tenant.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tenant.Record, 0, len(s.tenants))
	for _, r := range s.tenants {
		if r.Active {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

func (s *Store) Find(_ context.Context, f tenant.Filter) ([]tenant.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tenant.Record, 0)
	for _, r := range s.tenants {
		if f.MatchRecord(r) {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (tenant.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.tenants[id]
	if !ok {
		return tenant.Record{}, tenant.ErrNotFound
	}
	return r, nil
}

func (s *Store) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.tenants[id]
	return ok, nil
}

func (s *Store) Insert(_ context.Context, r tenant.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[r.ID]; ok {
		return tenant.ErrAlreadyExists
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	s.tenants[r.ID] = r
	return nil
}

func (s *Store) Update(_ context.Context, r tenant.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tenants[r.ID]
	if !ok {
		return tenant.ErrNotFound
	}
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = s.now()
	s.tenants[r.ID] = r
	return nil
}

func (s *Store) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.tenants[id]
	if !ok {
		return tenant.ErrNotFound
	}
	r.Active = active
	r.UpdatedAt = s.now()
	s.tenants[id] = r
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[id]; !ok {
		return tenant.ErrNotFound
	}
	delete(s.tenants, id)
	for rid, r := range s.relations {
		if r.TenantID == id {
			delete(s.relations, rid)
		}
	}
	return nil
}

func (s *Store) ListRelations(_ context.Context) ([]tenant.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relationsLocked(tenant.RelationFilter{}), nil
}

func (s *Store) FindRelations(_ context.Context, f tenant.RelationFilter) ([]tenant.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relationsLocked(f), nil
}

func (s *Store) GetRelation(_ context.Context, id int64) (tenant.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.relations[id]
	if !ok {
		return tenant.Relation{}, tenant.ErrNotFound
	}
	return r, nil
}

func (s *Store) FindRelation(_ context.Context, relationID, qualifier string) (tenant.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.relations {
		if r.RelationID == relationID && r.Qualifier == qualifier {
			return r, nil
		}
	}
	return tenant.Relation{}, tenant.ErrNotFound
}

func (s *Store) InsertRelation(_ context.Context, r tenant.Relation) (tenant.Relation, error) {
	if err := r.Validate(); err != nil {
		return tenant.Relation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[r.TenantID]; !ok {
		return tenant.Relation{}, errors.Join(tenant.ErrDanglingRelation, tenant.ErrNotFound)
	}
	if s.hasKeyLocked(r.Key(), 0) {
		return tenant.Relation{}, tenant.ErrAlreadyExists
	}
	s.nextID++
	r.ID = s.nextID
	s.relations[r.ID] = r
	return r, nil
}

func (s *Store) UpdateRelation(_ context.Context, r tenant.Relation) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.relations[r.ID]; !ok {
		return tenant.ErrNotFound
	}
	if _, ok := s.tenants[r.TenantID]; !ok {
		return errors.Join(tenant.ErrDanglingRelation, tenant.ErrNotFound)
	}
	if s.hasKeyLocked(r.Key(), r.ID) {
		return tenant.ErrAlreadyExists
	}
	s.relations[r.ID] = r
	return nil
}

func (s *Store) DeleteRelation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.relations[id]; !ok {
		return tenant.ErrNotFound
	}
	delete(s.relations, id)
	return nil
}

// relationsLocked returns matching relations ordered by surrogate id, which is insertion order.
func (s *Store) relationsLocked(f tenant.RelationFilter) []tenant.Relation {
	out := make([]tenant.Relation, 0, len(s.relations))
	for _, r := range s.relations {
		if f.MatchRelation(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) hasKeyLocked(key tenant.RelationKey, except int64) bool {
	for id, r := range s.relations {
		if id != except && r.Key() == key {
			return true
		}
	}
	return false
}

func sortRecords(rs []tenant.Record) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
}
