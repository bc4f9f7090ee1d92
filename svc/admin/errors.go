package admin

import "errors"

var (
	ErrInvalidRequest = errors.New("admin: invalid request")
	ErrRollbackFailed = errors.New("admin: failed to roll back record after provisioning error")
)
