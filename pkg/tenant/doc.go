// Package tenant defines the tenant data model, the record store contract and
// the per-task tenant selection used by the router.
//
// # Records
//
// A Record describes one tenant: its Kind decides where the connection comes
// from (a dedicated pool, a naming-service lookup, or a connection registered
// by the host application) and ConnParams carries what a pool factory needs.
// A Relation maps an external relation key, optionally scoped by a qualifier,
// to a tenant id.
//
// # Selection
//
// The current tenant lives in a selection scope attached to a context.Context:
//
//	ctx = tenant.NewContext(ctx)      // empty scope at the start of a request
//	_ = tenant.Set(ctx, "acme")       // select
//	id, ok := tenant.Current(ctx)     // read
//	child := tenant.Fork(ctx)         // child task inherits "acme"
//	tenant.Clear(ctx)                 // release
//
// A forked scope starts with the parent's value; setting or clearing it never
// changes the parent. Long-lived workers must clear their scope when a task
// finishes; see package async for a pool that does it.
//
// # Resolvers
//
// Resolvers extract a Target from HTTP requests: a tenant id from a header,
// subdomain or path segment, or a relation id plus qualifier from headers.
//
// # Errors
//
//   - ErrNotFound: tenant or relation absent
//   - ErrAlreadyExists: duplicate registration or insert
//   - ErrResourceUnavailable: connection or persistence context could not be built
//   - ErrTenantUnavailable: the selected tenant is not provisioned
package tenant
