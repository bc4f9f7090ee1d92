package orm

import (
	"context"
	"database/sql"
)

// Coordinator is an external two-phase-commit capable transaction manager.
// tenantdb only binds contexts to it; transaction semantics stay with the coordinator.
type Coordinator interface {
	// Enlist registers the resource under its unique name.
	Enlist(ctx context.Context, name string, db *sql.DB) error
	// Delist forgets the resource. It is called when the context closes.
	Delist(name string) error
}

// Mode is how a context handles transactions.
type Mode string

const (
	// ModeLocal lets gorm wrap writes in local transactions.
	ModeLocal Mode = "local"
	// ModeGlobal leaves transaction demarcation to the Coordinator.
	ModeGlobal Mode = "global"
)
