package resource

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Conn is a pooled connection handle owned (or borrowed) by one tenant.
// Implementations must be safe for concurrent use.
type Conn interface {
	// Name is the unique name the pool was opened with (the tenant id for owned pools).
	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// PersistenceContext is the handle application code performs persistence through.
type PersistenceContext interface {
	Name() string
	Close() error
}

// Bundle pairs a tenant's connection with the persistence context bound to it.
// A Bundle is immutable once built and is only published complete.
type Bundle struct {
	// InstanceID distinguishes successive bundles of the same tenant.
	InstanceID uuid.UUID
	TenantID   string
	Conn       Conn
	Context    PersistenceContext
	// OwnsConn is false when the connection is borrowed from the host
	// application and must survive decommissioning.
	OwnsConn  bool
	CreatedAt time.Time
}

// NewBundle builds a bundle from both handles. It returns nil if either is missing.
func NewBundle(tenantID string, conn Conn, pc PersistenceContext, ownsConn bool) *Bundle {
	if conn == nil || pc == nil {
		return nil
	}
	return &Bundle{
		InstanceID: uuid.New(),
		TenantID:   tenantID,
		Conn:       conn,
		Context:    pc,
		OwnsConn:   ownsConn,
		CreatedAt:  time.Now(),
	}
}
