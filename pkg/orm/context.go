package orm

import (
	"context"
	"errors"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/dmitrymomot/tenantdb/pkg/resource"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// Context is a tenant's persistence context: a *gorm.DB bound to the tenant pool.
// It satisfies resource.PersistenceContext. Closing it does not close the pool;
// the pool belongs to the bundle and is closed after the context.
type Context struct {
	name        string
	db          *gorm.DB
	mode        Mode
	models      []any
	coordinator Coordinator
	closed      atomic.Bool
}

func (c *Context) Name() string { return c.name }

func (c *Context) Mode() Mode { return c.mode }

// Models returns the entity model scope the context was built with.
func (c *Context) Models() []any { return c.models }

// DB returns a session bound to ctx. After Close it fails with ErrClosed,
// which also matches tenant.ErrResourceUnavailable.
func (c *Context) DB(ctx context.Context) (*gorm.DB, error) {
	if c.closed.Load() {
		return nil, errors.Join(tenant.ErrResourceUnavailable, ErrClosed)
	}
	return c.db.WithContext(ctx), nil
}

// Close delists the context from the coordinator in global mode. Later calls are no-ops.
func (c *Context) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.mode == ModeGlobal && c.coordinator != nil {
		return c.coordinator.Delist(c.name)
	}
	return nil
}

// Dispatcher resolves the persistence context for the current selection.
type Dispatcher interface {
	Current(ctx context.Context) (resource.PersistenceContext, error)
}

// Current returns a gorm session for the tenant selected in ctx (or the default tenant).
func Current(ctx context.Context, d Dispatcher) (*gorm.DB, error) {
	pc, err := d.Current(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := pc.(*Context)
	if !ok {
		return nil, ErrUnsupportedContext
	}
	return c.DB(ctx)
}
