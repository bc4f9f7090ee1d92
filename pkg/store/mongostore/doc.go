// Package mongostore stores tenant and relation records in MongoDB.
//
// Records live in the "tenants" collection keyed by tenant id; relations live
// in "tenant_relations" with int64 ids taken from a "counters" sequence and a
// unique index on (relation_id, qualifier). All three names take an optional
// prefix.
//
//	client, err := mongostore.Connect(ctx, cfg)
//	store, err := mongostore.New(ctx, client.Database(cfg.Database), cfg.CollectionPrefix,
//	    mongostore.WithSealer(sealer))
package mongostore
