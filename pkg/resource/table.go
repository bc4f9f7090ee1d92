package resource

import (
	"errors"
	"sort"
	"sync"
)

// ErrNameNotFound is returned when no connection is registered under a name.
var ErrNameNotFound = errors.New("resource: name not found")

// Table holds connections materialized by the host application, keyed by name.
// Tenants of the pre-registered kind borrow their connection from it.
type Table struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{conns: make(map[string]Conn)}
}

// Put registers conn under name, replacing any previous entry.
func (t *Table) Put(name string, conn Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[name] = conn
}

// Get returns the connection registered under name.
func (t *Table) Get(name string) (Conn, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conn, ok := t.conns[name]
	if !ok {
		return nil, ErrNameNotFound
	}
	return conn, nil
}

// Remove drops the entry for name. The connection is not closed.
func (t *Table) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, name)
}

// Names lists registered names in sorted order.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.conns))
	for name := range t.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
