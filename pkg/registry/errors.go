package registry

import "errors"

// ErrInvalidBundle is returned when registering an empty id or a nil bundle.
var ErrInvalidBundle = errors.New("registry: empty tenant id or nil bundle")
