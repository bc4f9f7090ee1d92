// Package metrics exposes Prometheus collectors for tenant provisioning,
// teardown failures, dispatch outcomes and per-tenant pool usage.
package metrics
