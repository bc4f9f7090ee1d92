package pg

import "time"

// Config holds pool settings shared by the record store pool and every tenant pool.
// Tenant pools take their URL and credentials from the tenant record; everything
// else comes from here.
type Config struct {
	ConnectionString string `env:"PG_CONN_URL"` // ConnectionString is the record store database; empty when another store driver is used.

	MaxConns          int32         `env:"PG_MAX_CONNS" envDefault:"15"`           // MaxConns caps each pool.
	MinConns          int32         `env:"PG_MIN_CONNS" envDefault:"10"`           // MinConns is kept open per pool.
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`  // HealthCheckPeriod is the period between pool health checks.
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"` // MaxConnIdleTime is how long a connection may stay idle.
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`  // MaxConnLifetime is how long a connection may be reused.

	RetryAttempts int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`  // RetryAttempts bounds the initial connect of one pool.
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"2s"` // RetryInterval is multiplied by the attempt number between attempts.

	MigrationsTable string `env:"PG_MIGRATIONS_TABLE" envDefault:"tenantdb_migrations"` // MigrationsTable stores the goose version of the record store schema.
}

// DefaultConfig returns the values envDefault would produce.
func DefaultConfig() Config {
	return Config{
		MaxConns:          15,
		MinConns:          10,
		HealthCheckPeriod: time.Minute,
		MaxConnIdleTime:   10 * time.Minute,
		MaxConnLifetime:   30 * time.Minute,
		RetryAttempts:     3,
		RetryInterval:     2 * time.Second,
		MigrationsTable:   "tenantdb_migrations",
	}
}
