// Package tenantdb routes persistence calls to per-tenant database resources.
//
// Every tenant owns a pooled connection and a persistence context (a gorm
// session bound to that pool). Application code never names a tenant when it
// talks to the database: it asks the Router for the context that serves the
// current unit of work, and the Router answers from the tenant selected in the
// context.Context, falling back to the default tenant.
//
//	router := tenantdb.New(store, pg.NewFactory(pgCfg), orm.NewFactory(orm.WithModels(&Order{})),
//	    tenantdb.WithStaticTenants(static),
//	    tenantdb.WithLogger(log),
//	)
//	if err := router.Start(ctx); err != nil {
//	    log.Error("some tenants failed to provision", logger.Error(err))
//	}
//	defer router.Close(context.Background())
//
//	mux.Use(router.Middleware())
//
//	func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
//	    db, err := h.router.CurrentDB(r.Context())
//	    ...
//	}
//
// Background jobs open their own scope:
//
//	ctx = router.Scope(ctx)
//	_ = router.SelectTenant(ctx, "acme")
//	defer router.ClearSelection(ctx)
//
// Child goroutines inherit the selection through router.Fork or package async.
//
// # Tenant kinds
//
// A direct tenant gets a dedicated pool built from its record. A directory
// tenant looks its connection parameters up in a naming service (static map
// or Redis). A pre-registered tenant borrows a connection the host registered
// with RegisterResource; that connection is never closed by the router.
//
// # Provisioning
//
// Tenants are added and removed at runtime through the lifecycle manager
// (see svc/admin for the administrative API). A tenant's bundle becomes
// visible only when both handles are open, and disappears before they are
// closed.
package tenantdb
