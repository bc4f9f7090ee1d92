// Package pg opens PostgreSQL pools with pgx/v5.
//
// Factory opens one named pool per tenant. The name (the tenant id) is also
// sent as application_name. Pool limits and the connect retry policy come from
// Config (PG_* environment variables); URL and credentials come from the
// tenant record. Records may name a vendor extension, a hook registered with
// WithExtension that edits the pgxpool.Config before connecting:
//
//	f := pg.NewFactory(cfg, pg.WithExtension("pgbouncer", func(c *pgxpool.Config) error {
//	    c.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
//	    return nil
//	}))
//	pool, err := f.Open(ctx, "acme", rec.Conn)
//
// Every Open failure matches tenant.ErrResourceUnavailable. Connect and Migrate
// serve the record store database; IsDuplicateKeyError and friends classify
// driver errors.
package pg
