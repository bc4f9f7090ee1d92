// Package config loads configuration from the environment and from YAML files.
//
// Environment configuration uses github.com/caarlos0/env/v11 struct tags. A
// .env file in the working directory is loaded once (github.com/joho/godotenv)
// before the first parse; real environment variables win over it.
//
//	type Config struct {
//	    Addr string `env:"TENANTDB_HTTP_ADDR" envDefault:":8080"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil { ... }
//
// Load caches one value per type for the life of the process. Parse skips the
// cache.
//
// LoadYAML decodes structured files such as the static tenants list with
// gopkg.in/yaml.v3, expanding ${VAR} references from the environment and
// rejecting unknown fields.
package config
