// Package httpserver runs the process HTTP surface with graceful shutdown.
//
// Run blocks until the context ends or SIGINT/SIGTERM arrives. Shutdown
// stops accepting connections, waits for in-flight requests and then runs
// the drain funcs registered with WithDrain, all within one timeout:
//
//	srv := httpserver.NewFromConfig(cfg.HTTP,
//		httpserver.WithLogger(log),
//		httpserver.WithDrain("tenants", router.Close),
//	)
//	err := srv.Run(ctx, mux)
//
// Liveness and Readiness build probe handlers; Readiness runs named checks
// against the request context.
package httpserver
