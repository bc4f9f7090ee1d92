package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/tenantdb"
	"github.com/dmitrymomot/tenantdb/pkg/httpserver"
	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/metrics"
	"github.com/dmitrymomot/tenantdb/pkg/store/pgstore"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
	"github.com/dmitrymomot/tenantdb/svc/admin"
)

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Provision tenants and serve the admin, probe and metrics endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply record store migrations before starting (postgres only)")
	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}

	if migrate {
		if a.pgPool == nil {
			_ = a.close(ctx)
			return ErrNotPostgres
		}
		if err := pgstore.Migrate(ctx, a.pgPool, a.cfg.PG, a.log); err != nil {
			_ = a.close(ctx)
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router, m, err := a.newRouter(reg)
	if err != nil {
		_ = a.close(ctx)
		return err
	}
	if m != nil {
		reg.MustRegister(metrics.NewPoolCollector(router))
	}

	// Tenants that fail to start are logged and stay unprovisioned; the
	// admin API can retry them with POST /admin/reload.
	if err := router.Start(ctx); err != nil {
		a.log.WarnContext(ctx, "some tenants failed to start", logger.Error(err))
	}

	svc := admin.NewService(router.Store(), router.Lifecycle(), router.Relations(),
		admin.WithLogger(a.log),
		admin.WithMetrics(m),
	)

	checks := map[string]httpserver.Check{"default_tenant": defaultTenantCheck(router)}
	for name, c := range a.checks {
		checks[name] = c
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	mux.Get("/livez", httpserver.Liveness())
	mux.Get("/readyz", httpserver.Readiness(a.log, checks))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Mount("/admin", admin.NewHandler(svc, a.log).Routes())
	mux.With(router.Middleware(tenantdb.WithResolver(tenant.NewCompositeResolver(
		tenant.NewHeaderResolver(a.cfg.TenantHeader),
		tenant.NewRelationHeaderResolver(a.cfg.RelationHeader, a.cfg.QualifierHeader),
	)))).Get("/probe", probeHandler(router))

	srv := httpserver.NewFromConfig(a.cfg.HTTP,
		httpserver.WithLogger(a.log),
		httpserver.WithDrain("tenants", router.Close),
		httpserver.WithDrain("clients", a.close),
	)
	return srv.Run(ctx, mux)
}

// defaultTenantCheck fails while a configured default tenant is not provisioned.
func defaultTenantCheck(router *tenantdb.Router) httpserver.Check {
	return func(context.Context) error {
		id, ok := router.DefaultTenant()
		if !ok {
			return nil
		}
		if _, live := router.Stats()[id]; !live {
			return fmt.Errorf("default tenant %s is not provisioned", id)
		}
		return nil
	}
}

type probeResponse struct {
	Tenant    string  `json:"tenant"`
	Conn      string  `json:"conn"`
	LatencyMS float64 `json:"latency_ms"`
}

// probeHandler pings the connection of the tenant the request resolves to.
func probeHandler(router *tenantdb.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, _ := router.CurrentTenant(ctx)

		conn, err := router.CurrentConn(ctx)
		if err != nil {
			http.Error(w, err.Error(), tenantdb.StatusCode(err))
			return
		}

		start := time.Now()
		if err := conn.Ping(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(probeResponse{
			Tenant:    id,
			Conn:      conn.Name(),
			LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
		})
	}
}
