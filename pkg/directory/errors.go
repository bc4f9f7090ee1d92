package directory

import "errors"

var (
	ErrNameNotFound                 = errors.New("directory: name not found")
	ErrInvalidEntry                 = errors.New("directory: entry needs a name and a url")
	ErrLookupFailed                 = errors.New("directory: lookup failed")
	ErrPublishFailed                = errors.New("directory: publish failed")
	ErrFailedToParseRedisConnString = errors.New("directory: failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("directory: redis did not become ready within the given time period")
	ErrEmptyConnectionURL           = errors.New("directory: empty redis connection URL")
	ErrHealthcheckFailed            = errors.New("directory: redis healthcheck failed")
)
