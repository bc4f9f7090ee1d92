// Package pgstore stores tenant and relation records in PostgreSQL.
//
// The schema lives in embedded goose migrations (tables tenants and
// tenant_relations); apply it with Migrate. The pair (relation_id, qualifier)
// is unique, so duplicate relations surface as tenant.ErrAlreadyExists.
//
// With WithSealer, connection passwords are sealed per tenant before they are
// written and opened on read. Rows written without a sealer are read back
// unchanged.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err := pgstore.Migrate(ctx, pool, cfg, log); err != nil { ... }
//	store := pgstore.New(pool, pgstore.WithSealer(sealer))
package pgstore
