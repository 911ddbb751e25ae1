package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache store is closed")

// Store is the result cache consulted by the router before any downstream
// call. Implementations must be safe for arbitrarily many concurrent callers.
type Store interface {
	// Get returns the cached value for (namespace, key), or ok=false on a
	// miss. An entry past its TTL is a miss.
	Get(ctx context.Context, namespace, key string) (json.RawMessage, bool, error)

	// Set stores a value under (namespace, key) with the given TTL.
	Set(ctx context.Context, namespace, key string, value json.RawMessage, ttl time.Duration) error

	// InvalidateNamespace drops every entry in the namespace. Called by the
	// router after a successful mutating call.
	InvalidateNamespace(ctx context.Context, namespace string) error

	// Stats returns hit/miss/eviction counters.
	Stats() Stats

	Close() error
}

// Stats tracks cache performance.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Evictions     int64 `json:"evictions"`
	Invalidations int64 `json:"invalidations"`
	Size          int   `json:"size"`
}

// Config configures cache construction.
type Config struct {
	// Backend selects "memory" (default) or "redis".
	Backend string `yaml:"backend" json:"backend" env:"BACKEND"`

	// MaxEntries caps the in-memory backend. 0 means the default.
	MaxEntries int `yaml:"max_entries" json:"max_entries" env:"MAX_ENTRIES"`

	// DefaultTTL applies when a tool policy does not override it.
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" env:"DEFAULT_TTL"`

	// Redis connection settings, used when Backend is "redis".
	Redis RedisConfig `yaml:"redis" json:"redis" env:"REDIS"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr" env:"ADDR"`
	Password string `yaml:"password" json:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" json:"db" env:"DB"`
	PoolSize int    `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:    "memory",
		MaxEntries: 10000,
		DefaultTTL: 5 * time.Minute,
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
	}
}
