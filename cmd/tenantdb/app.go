package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/tenantdb"
	"github.com/dmitrymomot/tenantdb/pkg/config"
	"github.com/dmitrymomot/tenantdb/pkg/directory"
	"github.com/dmitrymomot/tenantdb/pkg/httpserver"
	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/metrics"
	"github.com/dmitrymomot/tenantdb/pkg/orm"
	"github.com/dmitrymomot/tenantdb/pkg/pg"
	"github.com/dmitrymomot/tenantdb/pkg/secrets"
	"github.com/dmitrymomot/tenantdb/pkg/store/memstore"
	"github.com/dmitrymomot/tenantdb/pkg/store/mongostore"
	"github.com/dmitrymomot/tenantdb/pkg/store/pgstore"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

var (
	ErrUnknownStoreDriver     = errors.New("unknown store driver")
	ErrUnknownDirectoryDriver = errors.New("unknown directory driver")
	ErrGlobalModeUnsupported  = errors.New("global persistence mode needs a coordinator supplied by an embedding application")
	ErrNotPostgres            = errors.New("command requires TENANTDB_STORE_DRIVER=postgres")
)

type appConfig struct {
	tenantdb.Config

	PG    pg.Config
	Mongo mongostore.Config
	Redis directory.RedisConfig
}

// app holds the process-wide dependencies shared by the commands.
type app struct {
	cfg     appConfig
	log     *slog.Logger
	store   tenant.Store
	pgPool  *pgxpool.Pool
	dir     directory.Directory
	checks  map[string]httpserver.Check
	closers []func(context.Context) error
}

func loadApp(ctx context.Context) (*app, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}

	opts := []logger.Option{
		logger.WithService("tenantdb", cfg.Env),
		logger.WithContextExtractors(tenant.LoggerExtractor(), requestIDExtractor),
	}
	if cfg.LogLevel != "" {
		opts = append(opts, logger.WithLevelName(cfg.LogLevel))
	}
	if cfg.LogFormat != "" {
		opts = append(opts, logger.WithFormat(logger.Format(cfg.LogFormat)))
	}
	log := logger.New(opts...)
	logger.SetAsDefault(log)

	a := &app{cfg: cfg, log: log, checks: make(map[string]httpserver.Check)}
	if err := a.openStore(ctx); err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	if err := a.openDirectory(ctx); err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	return a, nil
}

func requestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if id := middleware.GetReqID(ctx); id != "" {
		return logger.RequestID(id), true
	}
	return slog.Attr{}, false
}

func (a *app) sealer() (*secrets.Sealer, error) {
	if a.cfg.AppKey == "" {
		a.log.Warn("TENANTDB_APP_KEY is not set, connection passwords are stored in plain text")
		return nil, nil
	}
	key, err := secrets.ParseKey(a.cfg.AppKey)
	if err != nil {
		return nil, err
	}
	return secrets.NewSealer(key)
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.StoreDriver {
	case "", "memory":
		a.store = memstore.New()

	case "postgres":
		sealer, err := a.sealer()
		if err != nil {
			return err
		}
		pool, err := pg.Connect(ctx, a.cfg.PG)
		if err != nil {
			return err
		}
		a.pgPool = pool
		a.store = pgstore.New(pool, pgstore.WithSealer(sealer))
		a.checks["store"] = pg.Healthcheck(pool)
		a.closers = append(a.closers, func(context.Context) error {
			pool.Close()
			return nil
		})

	case "mongo":
		sealer, err := a.sealer()
		if err != nil {
			return err
		}
		client, err := mongostore.Connect(ctx, a.cfg.Mongo)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Disconnect)
		st, err := mongostore.New(ctx, client.Database(a.cfg.Mongo.Database), a.cfg.Mongo.CollectionPrefix,
			mongostore.WithSealer(sealer))
		if err != nil {
			return err
		}
		a.store = st
		a.checks["store"] = mongostore.Healthcheck(client)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownStoreDriver, a.cfg.StoreDriver)
	}

	a.log.Info("record store ready", slog.String("driver", a.cfg.StoreDriver))
	return nil
}

func (a *app) openDirectory(ctx context.Context) error {
	switch a.cfg.DirectoryDriver {
	case "", "none":
		return nil

	case "static":
		entries := make(map[string]tenant.ConnParams)
		if a.cfg.DirectoryFile != "" {
			if err := config.LoadYAML(a.cfg.DirectoryFile, &entries); err != nil {
				return err
			}
		}
		a.dir = directory.NewStatic(entries)

	case "redis":
		client, err := directory.Connect(ctx, a.cfg.Redis)
		if err != nil {
			return err
		}
		d := directory.NewRedis(client, a.cfg.Redis.KeyPrefix)
		a.dir = d
		a.checks["directory"] = d.Healthcheck()
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })

	default:
		return fmt.Errorf("%w: %q", ErrUnknownDirectoryDriver, a.cfg.DirectoryDriver)
	}
	return nil
}

// newRouter wires the tenant router. m is nil when metrics are disabled.
func (a *app) newRouter(reg prometheus.Registerer) (*tenantdb.Router, *metrics.Metrics, error) {
	var m *metrics.Metrics
	if a.cfg.MetricsEnabled {
		var err error
		if m, err = metrics.New(reg); err != nil {
			return nil, nil, err
		}
	}

	opts := []tenantdb.Option{
		tenantdb.WithLogger(a.log),
		tenantdb.WithMetrics(m),
		tenantdb.WithDefaultTenant(a.cfg.DefaultTenant),
		tenantdb.WithReloadConcurrency(a.cfg.ReloadConcurrency),
	}
	if a.dir != nil {
		opts = append(opts, tenantdb.WithDirectory(a.dir))
	}
	if a.cfg.StaticTenantsFile != "" {
		st, err := tenantdb.LoadStaticTenants(a.cfg.StaticTenantsFile)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, tenantdb.WithStaticTenants(st))
	}

	if orm.Mode(a.cfg.PersistenceMode) == orm.ModeGlobal {
		return nil, nil, ErrGlobalModeUnsupported
	}

	conns := pg.NewFactory(a.cfg.PG, pg.WithFactoryLogger(a.log))
	contexts := orm.NewFactory(orm.WithLogger(a.log))

	return tenantdb.New(a.store, conns, contexts, opts...), m, nil
}

// close releases store and directory clients in reverse order of opening.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
