// Package admin is the administrative surface of the router: it changes
// tenant and relation records and applies each change to the running
// router in the same call.
//
// AddTenant inserts an active record and provisions it; a provisioning
// failure removes the record again. UpdateTenant restores the previous
// record when the new one cannot be provisioned. RemoveTenant decommissions
// and deletes the record along with its relations. A record flagged default
// takes over dispatch as soon as it is live. Relation changes update the
// store and the in-memory index together.
//
// Handler mounts the service under chi:
//
//	GET    /tenants?kind=&keyword=
//	POST   /tenants
//	GET    /tenants/{id}
//	PUT    /tenants/{id}
//	DELETE /tenants/{id}
//	PUT    /tenants/{id}/active
//	GET    /relations?relation_id=&qualifier=&tenant_id=
//	POST   /relations
//	PUT    /relations/{id}
//	DELETE /relations/{id}
//	GET    /stats
//	POST   /reload
//	POST   /provision
package admin
