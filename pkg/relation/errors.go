package relation

import "errors"

var (
	// ErrUnknownTenant is returned when a relation references a tenant missing from the store.
	ErrUnknownTenant = errors.New("relation: referenced tenant does not exist")

	// ErrRebuildFailed is returned when the index cannot be loaded from the store.
	ErrRebuildFailed = errors.New("relation: index rebuild failed")
)
