package orm

import "errors"

var (
	// ErrUnsupportedConn is returned when a connection cannot expose a database/sql handle.
	ErrUnsupportedConn = errors.New("orm: connection does not expose database/sql")
	// ErrUnsupportedContext is returned when the dispatched persistence context is not built by this package.
	ErrUnsupportedContext = errors.New("orm: persistence context is not a gorm context")
	// ErrClosed is returned by a context used after Close.
	ErrClosed = errors.New("orm: persistence context closed")
	// ErrEnlistFailed is returned when the transaction coordinator rejects a context.
	ErrEnlistFailed = errors.New("orm: transaction coordinator enlist failed")
	// ErrMigrateFailed is returned when auto-migration of the model scope fails.
	ErrMigrateFailed = errors.New("orm: auto migration failed")
)
