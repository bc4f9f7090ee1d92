package lifecycle

import "errors"

var (
	// ErrInactive is returned when provisioning a record whose active flag is off.
	ErrInactive = errors.New("lifecycle: tenant is inactive")
	// ErrBusy is returned when a tenant is mid-transition and the requested step is not allowed.
	ErrBusy = errors.New("lifecycle: tenant is being provisioned or decommissioned")
	// ErrNoDirectory is returned for directory tenants when no naming service is configured.
	ErrNoDirectory = errors.New("lifecycle: no directory configured")
	// ErrNoResourceTable is returned for pre-registered tenants when no resource table is configured.
	ErrNoResourceTable = errors.New("lifecycle: no resource table configured")
	// ErrTeardown wraps close failures reported by Shutdown.
	ErrTeardown = errors.New("lifecycle: teardown failed")
)
