package mongostore

import "errors"

var (
	ErrEmptyConnectionURL = errors.New("mongostore: empty connection url")
	ErrFailedToConnect    = errors.New("mongostore: failed to connect to mongo")
	ErrHealthcheckFailed  = errors.New("mongostore: healthcheck failed")
	ErrQueryFailed        = errors.New("mongostore: query failed")
	ErrIndexFailed        = errors.New("mongostore: failed to create indexes")
	ErrSealFailed         = errors.New("mongostore: failed to seal credentials")
	ErrUnsealFailed       = errors.New("mongostore: failed to open sealed credentials")
)
