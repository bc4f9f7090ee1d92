package pgstore

import "errors"

var (
	ErrQueryFailed   = errors.New("pgstore: query failed")
	ErrSealFailed    = errors.New("pgstore: failed to seal credentials")
	ErrUnsealFailed  = errors.New("pgstore: failed to open sealed credentials")
	ErrMigrateFailed = errors.New("pgstore: schema migration failed")
)
