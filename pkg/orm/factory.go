package orm

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/resource"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// SQLProvider is implemented by connections that can hand out a database/sql view,
// such as *pg.Pool.
type SQLProvider interface {
	SQL() *sql.DB
}

// Option configures a Factory.
type Option func(*Factory)

// WithModels fixes the entity model scope of every context the factory builds.
func WithModels(models ...any) Option {
	return func(f *Factory) {
		f.models = append(f.models, models...)
	}
}

// WithAutoMigrate makes Build run gorm AutoMigrate for the model scope.
func WithAutoMigrate(enabled bool) Option {
	return func(f *Factory) { f.autoMigrate = enabled }
}

// WithCoordinator binds contexts to an external transaction coordinator (global mode).
func WithCoordinator(c Coordinator) Option {
	return func(f *Factory) { f.coordinator = c }
}

// WithPrepareStmt enables gorm prepared statement caching.
func WithPrepareStmt(enabled bool) Option {
	return func(f *Factory) { f.prepareStmt = enabled }
}

// WithSlowThreshold sets the duration above which queries are logged at warn level.
func WithSlowThreshold(d time.Duration) Option {
	return func(f *Factory) { f.slowThreshold = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// Factory builds gorm persistence contexts bound to tenant connections.
// The model scope and transaction mode are fixed when the factory is created.
type Factory struct {
	models        []any
	autoMigrate   bool
	coordinator   Coordinator
	prepareStmt   bool
	slowThreshold time.Duration
	logger        *slog.Logger
}

// NewFactory creates a factory.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		slowThreshold: 200 * time.Millisecond,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Mode reports the transaction mode of the contexts this factory builds.
func (f *Factory) Mode() Mode {
	if f.coordinator != nil {
		return ModeGlobal
	}
	return ModeLocal
}

// Build creates a context named name on conn. Every failure matches
// tenant.ErrResourceUnavailable and leaves nothing enlisted.
func (f *Factory) Build(ctx context.Context, name string, conn resource.Conn) (*Context, error) {
	provider, ok := conn.(SQLProvider)
	if !ok {
		return nil, errors.Join(tenant.ErrResourceUnavailable, ErrUnsupportedConn)
	}
	sqlDB := provider.SQL()
	if sqlDB == nil {
		return nil, errors.Join(tenant.ErrResourceUnavailable, ErrUnsupportedConn)
	}
	mode := f.Mode()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		// Global mode: the coordinator owns transaction boundaries.
		SkipDefaultTransaction: mode == ModeGlobal,
		DisableAutomaticPing:   true,
		PrepareStmt:            f.prepareStmt,
		Logger:                 newGormLogger(f.logger.With(logger.TenantID(name)), f.slowThreshold),
	})
	if err != nil {
		return nil, errors.Join(tenant.ErrResourceUnavailable, err)
	}

	if f.autoMigrate && len(f.models) > 0 {
		if err := db.WithContext(ctx).AutoMigrate(f.models...); err != nil {
			return nil, errors.Join(tenant.ErrResourceUnavailable, ErrMigrateFailed, err)
		}
	}

	if mode == ModeGlobal {
		if err := f.coordinator.Enlist(ctx, name, sqlDB); err != nil {
			return nil, errors.Join(tenant.ErrResourceUnavailable, ErrEnlistFailed, err)
		}
	}

	return &Context{
		name:        name,
		db:          db,
		mode:        mode,
		models:      f.models,
		coordinator: f.coordinator,
	}, nil
}

// BuildContext is Build behind the resource.PersistenceContext interface.
func (f *Factory) BuildContext(ctx context.Context, name string, conn resource.Conn) (resource.PersistenceContext, error) {
	c, err := f.Build(ctx, name, conn)
	if err != nil {
		return nil, err
	}
	return c, nil
}
