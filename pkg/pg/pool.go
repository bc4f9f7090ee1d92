package pg

import (
	"context"
	"database/sql"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Pool is a named tenant connection pool. It satisfies resource.Conn.
type Pool struct {
	name string
	pool *pgxpool.Pool

	mu     sync.Mutex
	sqlDB  *sql.DB
	closed bool
}

// NewPool wraps an already opened pgx pool under name. Closing the Pool closes p.
func NewPool(name string, p *pgxpool.Pool) *Pool {
	return &Pool{name: name, pool: p}
}

// Name returns the unique name the pool was opened with.
func (p *Pool) Name() string { return p.name }

func (p *Pool) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Raw exposes the underlying pgx pool.
func (p *Pool) Raw() *pgxpool.Pool { return p.pool }

// SQL returns a database/sql view sharing the pool's connections.
// Persistence contexts and goose run on top of it.
// After Close it returns nil.
func (p *Pool) SQL() *sql.DB {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if p.sqlDB == nil {
		p.sqlDB = stdlib.OpenDBFromPool(p.pool)
	}
	return p.sqlDB
}

// Stats is a point-in-time snapshot of pool usage.
type Stats struct {
	Name         string `json:"name"`
	TotalConns   int32  `json:"total_conns"`
	IdleConns    int32  `json:"idle_conns"`
	AcquireCount int64  `json:"acquire_count"`
	MaxConns     int32  `json:"max_conns"`
}

func (p *Pool) Stats() Stats {
	s := p.pool.Stat()
	return Stats{
		Name:         p.name,
		TotalConns:   s.TotalConns(),
		IdleConns:    s.IdleConns(),
		AcquireCount: s.AcquireCount(),
		MaxConns:     s.MaxConns(),
	}
}

// Close releases the database/sql view, if any, and then the pool.
// Calling Close more than once is safe.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	if p.sqlDB != nil {
		err = p.sqlDB.Close()
		p.sqlDB = nil
	}
	p.pool.Close()
	return err
}
