package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// RedisConfig configures the Redis naming service.
type RedisConfig struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"` // ConnectionURL in the form "redis://:password@localhost:6379/0".
	KeyPrefix      string        `env:"REDIS_DIRECTORY_PREFIX" envDefault:"tenantdb:directory:"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// Connect opens a Redis client and waits until it answers PING,
// retrying cfg.RetryAttempts times within cfg.ConnectTimeout.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	for range max(cfg.RetryAttempts, 1) {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, ErrRedisNotReady
}

// Redis is a naming service backed by one Redis hash per name.
// Hash fields: url, driver, username, password, extension.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

var _ Directory = (*Redis)(nil)

// NewRedis creates a directory on client. Keys are prefix+name.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (d *Redis) key(name string) string { return d.prefix + name }

func (d *Redis) Lookup(ctx context.Context, name string) (tenant.ConnParams, error) {
	fields, err := d.client.HGetAll(ctx, d.key(name)).Result()
	if err != nil {
		return tenant.ConnParams{}, errors.Join(ErrLookupFailed, err)
	}
	if len(fields) == 0 || fields["url"] == "" {
		return tenant.ConnParams{}, ErrNameNotFound
	}
	return tenant.ConnParams{
		URL:       fields["url"],
		Driver:    fields["driver"],
		Username:  fields["username"],
		Password:  fields["password"],
		Extension: fields["extension"],
	}, nil
}

// Publish binds name to p, replacing the whole hash atomically.
func (d *Redis) Publish(ctx context.Context, name string, p tenant.ConnParams) error {
	if name == "" || p.URL == "" {
		return ErrInvalidEntry
	}
	key := d.key(name)
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"url", p.URL,
			"driver", p.Driver,
			"username", p.Username,
			"password", p.Password,
			"extension", p.Extension,
		)
		return nil
	})
	if err != nil {
		return errors.Join(ErrPublishFailed, err)
	}
	return nil
}

// Remove unbinds name.
func (d *Redis) Remove(ctx context.Context, name string) error {
	if err := d.client.Del(ctx, d.key(name)).Err(); err != nil {
		return errors.Join(ErrPublishFailed, err)
	}
	return nil
}

// Names lists published names using SCAN.
func (d *Redis) Names(ctx context.Context) ([]string, error) {
	var names []string
	iter := d.client.Scan(ctx, 0, d.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), d.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Join(ErrLookupFailed, err)
	}
	sort.Strings(names)
	return names, nil
}

// Healthcheck returns a closure that pings the Redis server.
func (d *Redis) Healthcheck() func(context.Context) error {
	return func(ctx context.Context) error {
		if err := d.client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
