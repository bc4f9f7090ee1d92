package tenant

import "errors"

var (
	// ErrNotFound is returned when a tenant or relation is absent.
	ErrNotFound = errors.New("tenant: not found")

	// ErrAlreadyExists is returned on duplicate registration or insert.
	ErrAlreadyExists = errors.New("tenant: already exists")

	// ErrResourceUnavailable is returned when a connection or persistence context
	// cannot be built, or an externally provisioned resource is missing.
	ErrResourceUnavailable = errors.New("tenant: resource unavailable")

	// ErrTenantUnavailable is returned when the selected tenant is not provisioned at dispatch time.
	ErrTenantUnavailable = errors.New("tenant: tenant unavailable")

	// ErrInvalidRecord is returned when a tenant record fails validation.
	ErrInvalidRecord = errors.New("tenant: invalid record")

	// ErrDanglingRelation is returned when a relation references a tenant the store does not hold.
	ErrDanglingRelation = errors.New("tenant: relation references a missing tenant")

	// ErrInvalidRelation is returned when a relation record fails validation.
	ErrInvalidRelation = errors.New("tenant: invalid relation")

	// ErrMultipleDefaults is returned when more than one tenant is flagged default.
	ErrMultipleDefaults = errors.New("tenant: more than one default tenant")

	// ErrNoSelectionScope is returned when a selection is changed on a context without a scope.
	ErrNoSelectionScope = errors.New("tenant: context carries no selection scope")
)
