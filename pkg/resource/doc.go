// Package resource defines the runtime handles a tenant owns: a pooled
// connection and a persistence context, paired into a Bundle.
//
// Bundles are built by the lifecycle manager and published into the registry
// only when both handles exist. Table is the host application's registry of
// already materialized connections that pre-registered tenants borrow.
package resource
