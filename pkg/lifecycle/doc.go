// Package lifecycle provisions and decommissions tenants at runtime.
//
// Each tenant walks unprovisioned -> provisioning -> active ->
// decommissioning -> unprovisioned; a failed provision returns to
// unprovisioned. Provision dispatches on the record kind:
//
//   - direct: a pool is opened from the record's connection parameters
//   - directory: parameters are looked up by name in a directory.Directory
//   - preregistered: a connection is borrowed from a resource.Table and is
//     never closed by the manager
//
// Then a persistence context is built on the connection, and only when both
// exist is the bundle registered. Decommission reverses it: unregister first
// so no new lookup can find the tenant, then close the context, then the
// connection. Close failures are logged and counted, never fatal.
//
// Reload is the startup path: rebuild the relation index, elect the default
// tenant, provision active direct tenants. Other kinds are provisioned by
// ProvisionPending once what they depend on exists.
package lifecycle
