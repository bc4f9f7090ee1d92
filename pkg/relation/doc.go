// Package relation maps external relation keys to tenant ids.
//
// An Index holds relationID -> ordered (qualifier, tenant) entries as an
// immutable snapshot behind an atomic pointer, so Resolve never locks.
// Resolution tries the exact (relationID, qualifier) pair first and falls back
// to the unqualified entry of relationID.
//
// A Resolver couples the Index with a tenant.Store. AddRelation,
// RemoveRelation and UpdateRelation write the store first and touch the index
// only once the store write succeeded; updates drop the old key and insert the
// new mapping in a single snapshot swap.
package relation
