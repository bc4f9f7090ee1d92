// Package directory is the naming service consulted for tenants of the
// directory kind: their record carries only an external name, and the
// connection parameters are looked up here when the tenant is provisioned.
//
// Static keeps entries in memory. Redis stores one hash per name under a
// configurable key prefix, so operators can repoint a tenant without touching
// the tenant table:
//
//	HSET tenantdb:directory:globex url postgres://db-7/globex username globex
package directory
