// Package registry holds the live mapping from tenant id to resource bundle.
//
// Lookups take a read lock and never wait on resource I/O: bundles are built
// before Register and torn down after Unregister, both by the caller. A bundle
// is either fully present or absent; Register refuses to overwrite an
// existing entry, so replacing a tenant's resources means Unregister first.
//
// Errors are the tenant package sentinels: tenant.ErrAlreadyExists from
// Register and tenant.ErrNotFound from Lookup and Unregister.
package registry
