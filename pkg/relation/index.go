package relation

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// Entry is one (qualifier, tenant) pair stored under a relation id.
type Entry struct {
	Qualifier string
	TenantID  string
}

// snapshot is never mutated after it is published.
type snapshot map[string][]Entry

// Index maps relation ids to ordered (qualifier, tenant) entries.
// Reads load an immutable snapshot without locking; writers copy the
// affected slice and swap the snapshot under mu.
type Index struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	idx := &Index{}
	empty := snapshot{}
	idx.snap.Store(&empty)
	return idx
}

// Resolve returns the tenant mapped to (relationID, qualifier).
// A non-empty qualifier is matched exactly first; the unqualified entry of
// relationID is the fallback. It returns tenant.ErrNotFound otherwise.
func (x *Index) Resolve(relationID, qualifier string) (string, error) {
	entries := (*x.snap.Load())[relationID]
	if len(entries) == 0 {
		return "", tenant.ErrNotFound
	}

	if qualifier != "" {
		for _, e := range entries {
			if e.Qualifier == qualifier {
				return e.TenantID, nil
			}
		}
	}
	for _, e := range entries {
		if e.Qualifier == "" {
			return e.TenantID, nil
		}
	}
	return "", tenant.ErrNotFound
}

// Put inserts or replaces the entry for (relationID, qualifier).
// Replacing removes the old entry and appends the new one.
func (x *Index) Put(relationID, qualifier, tenantID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	cur := *x.snap.Load()
	next := cur.clone()
	next[relationID] = append(without(cur[relationID], qualifier), Entry{Qualifier: qualifier, TenantID: tenantID})
	x.snap.Store(&next)
}

// Remove deletes the entry for (relationID, qualifier) and reports whether it existed.
func (x *Index) Remove(relationID, qualifier string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	cur := *x.snap.Load()
	old := cur[relationID]
	rest := without(old, qualifier)
	if len(rest) == len(old) {
		return false
	}

	next := cur.clone()
	if len(rest) == 0 {
		delete(next, relationID)
	} else {
		next[relationID] = rest
	}
	x.snap.Store(&next)
	return true
}

// Replace removes oldKey and inserts the new mapping in a single swap, so
// readers see either the old or the new state.
func (x *Index) Replace(oldKey tenant.RelationKey, r tenant.Relation) {
	x.mu.Lock()
	defer x.mu.Unlock()

	cur := *x.snap.Load()
	next := cur.clone()

	if rest := without(next[oldKey.RelationID], oldKey.Qualifier); len(rest) == 0 {
		delete(next, oldKey.RelationID)
	} else {
		next[oldKey.RelationID] = rest
	}
	next[r.RelationID] = append(without(next[r.RelationID], r.Qualifier), Entry{Qualifier: r.Qualifier, TenantID: r.TenantID})
	x.snap.Store(&next)
}

// Load replaces the whole index with relations, preserving their order.
func (x *Index) Load(relations []tenant.Relation) {
	next := make(snapshot, len(relations))
	for _, r := range relations {
		next[r.RelationID] = append(without(next[r.RelationID], r.Qualifier), Entry{Qualifier: r.Qualifier, TenantID: r.TenantID})
	}

	x.mu.Lock()
	x.snap.Store(&next)
	x.mu.Unlock()
}

// Len returns the number of entries in the index.
func (x *Index) Len() int {
	n := 0
	for _, entries := range *x.snap.Load() {
		n += len(entries)
	}
	return n
}

// Entries returns all entries keyed by relation id, sorted by relation id.
func (x *Index) Entries() []tenant.Relation {
	snap := *x.snap.Load()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]tenant.Relation, 0, len(ids))
	for _, id := range ids {
		for _, e := range snap[id] {
			out = append(out, tenant.Relation{RelationID: id, Qualifier: e.Qualifier, TenantID: e.TenantID})
		}
	}
	return out
}

func (s snapshot) clone() snapshot {
	next := make(snapshot, len(s)+1)
	for k, v := range s {
		next[k] = v
	}
	return next
}

// without returns a fresh slice of entries minus the one with qualifier.
func without(entries []Entry, qualifier string) []Entry {
	out := make([]Entry, 0, len(entries)+1)
	for _, e := range entries {
		if e.Qualifier != qualifier {
			out = append(out, e)
		}
	}
	return out
}
