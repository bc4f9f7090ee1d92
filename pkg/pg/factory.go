package pg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/resource"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// Extension adjusts a tenant pool config before the pool is opened.
// Tenant records reference extensions by name through ConnParams.Extension.
type Extension func(cfg *pgxpool.Config) error

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithExtension registers a named vendor extension.
func WithExtension(name string, ext Extension) FactoryOption {
	return func(f *Factory) {
		if name != "" && ext != nil {
			f.extensions[name] = ext
		}
	}
}

// WithFactoryLogger sets the logger. Defaults to slog.Default().
func WithFactoryLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// Factory opens one pool per tenant.
type Factory struct {
	cfg        Config
	extensions map[string]Extension
	logger     *slog.Logger
}

// NewFactory creates a pool factory using cfg for limits and retry policy.
func NewFactory(cfg Config, opts ...FactoryOption) *Factory {
	f := &Factory{
		cfg:        cfg,
		extensions: make(map[string]Extension),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// PoolConfig builds the pgx pool config for a tenant without connecting.
// name becomes the pool's unique name and its application_name, so the
// tenant is identifiable in pg_stat_activity and by an external coordinator.
func (f *Factory) PoolConfig(name string, params tenant.ConnParams) (*pgxpool.Config, error) {
	if name == "" {
		return nil, errors.Join(tenant.ErrResourceUnavailable, ErrEmptyConnectionString)
	}
	if params.URL == "" {
		return nil, errors.Join(tenant.ErrResourceUnavailable, ErrEmptyConnectionString)
	}
	switch strings.ToLower(params.Driver) {
	case "", "postgres", "postgresql", "pgx":
	default:
		return nil, errors.Join(tenant.ErrResourceUnavailable, fmt.Errorf("%w: %s", ErrUnsupportedDriver, params.Driver))
	}

	poolCfg, err := pgxpool.ParseConfig(params.URL)
	if err != nil {
		return nil, errors.Join(tenant.ErrResourceUnavailable, ErrFailedToParseDBConfig, err)
	}
	applyLimits(poolCfg, f.cfg)

	if params.Username != "" {
		poolCfg.ConnConfig.User = params.Username
	}
	if params.Password != "" {
		poolCfg.ConnConfig.Password = params.Password
	}
	if poolCfg.ConnConfig.RuntimeParams == nil {
		poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = name

	if params.Extension != "" {
		ext, ok := f.extensions[params.Extension]
		if !ok {
			return nil, errors.Join(tenant.ErrResourceUnavailable, fmt.Errorf("%w: %s", ErrUnknownExtension, params.Extension))
		}
		if err := ext(poolCfg); err != nil {
			return nil, errors.Join(tenant.ErrResourceUnavailable, ErrExtensionFailed, err)
		}
	}

	return poolCfg, nil
}

// Open builds and connects a pool for a tenant. Every failure is reported
// as tenant.ErrResourceUnavailable.
func (f *Factory) Open(ctx context.Context, name string, params tenant.ConnParams) (*Pool, error) {
	poolCfg, err := f.PoolConfig(name, params)
	if err != nil {
		return nil, err
	}

	p, err := connect(ctx, poolCfg, f.cfg.RetryAttempts, f.cfg.RetryInterval)
	if err != nil {
		return nil, errors.Join(tenant.ErrResourceUnavailable, err)
	}

	f.logger.DebugContext(ctx, "tenant pool opened",
		logger.TenantID(name),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return NewPool(name, p), nil
}

// OpenConn is Open behind the resource.Conn interface.
func (f *Factory) OpenConn(ctx context.Context, name string, params tenant.ConnParams) (resource.Conn, error) {
	p, err := f.Open(ctx, name, params)
	if err != nil {
		return nil, err
	}
	return p, nil
}
