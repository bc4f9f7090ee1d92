// Package orm builds per-tenant persistence contexts on gorm.
//
// A Factory fixes the entity model scope and the transaction mode once; Build
// then opens a gorm session over a tenant connection's database/sql view
// without touching the network (automatic ping is disabled). With a
// Coordinator configured, contexts run in global mode: they are enlisted
// under the tenant's unique name and gorm's implicit write transactions are
// turned off. Otherwise they run in local mode.
//
// Application code gets the session for the current tenant with Current:
//
//	db, err := orm.Current(ctx, router)
//	if err != nil {
//	    return err
//	}
//	return db.Create(&order).Error
package orm
