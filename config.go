package tenantdb

import "github.com/dmitrymomot/tenantdb/pkg/httpserver"

// Config is the process-level router configuration.
type Config struct {
	// DefaultTenant serves calls made with nothing selected. It overrides any
	// default flag in the static tenants file or the record store.
	DefaultTenant string `env:"TENANTDB_DEFAULT_TENANT"`

	// StaticTenantsFile is a YAML file of tenants provisioned at startup
	// before store-backed tenants.
	StaticTenantsFile string `env:"TENANTDB_STATIC_TENANTS_FILE"`

	// AppKey seals connection passwords in the record store (32 bytes, hex or base64).
	AppKey string `env:"TENANTDB_APP_KEY"`

	// StoreDriver selects the record store: memory, postgres or mongo.
	StoreDriver string `env:"TENANTDB_STORE_DRIVER" envDefault:"memory"`

	// DirectoryDriver selects the naming service for directory tenants: none, static or redis.
	DirectoryDriver string `env:"TENANTDB_DIRECTORY_DRIVER" envDefault:"none"`

	// DirectoryFile is the YAML map of name to connection parameters read by the static directory.
	DirectoryFile string `env:"TENANTDB_DIRECTORY_FILE"`

	HTTP           httpserver.Config `envPrefix:"TENANTDB_"`
	MetricsEnabled bool              `env:"TENANTDB_METRICS_ENABLED" envDefault:"true"`

	ReloadConcurrency int `env:"TENANTDB_RELOAD_CONCURRENCY" envDefault:"4"`

	TenantHeader    string `env:"TENANTDB_TENANT_HEADER" envDefault:"X-Tenant-ID"`
	RelationHeader  string `env:"TENANTDB_RELATION_HEADER" envDefault:"X-Relation-ID"`
	QualifierHeader string `env:"TENANTDB_QUALIFIER_HEADER" envDefault:"X-Relation-Qualifier"`

	// PersistenceMode is local or global; global enlists contexts with an external coordinator.
	PersistenceMode string `env:"TENANTDB_PERSISTENCE_MODE" envDefault:"local"`

	LogLevel  string `env:"TENANTDB_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"TENANTDB_LOG_FORMAT" envDefault:"json"`
	Env       string `env:"TENANTDB_ENV" envDefault:"development"`
}
