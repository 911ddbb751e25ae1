package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "agenthub:cache:"

// RedisStore is a Redis-backed Store for sharing cached results across hub
// replicas. TTL enforcement is delegated to Redis key expiry; namespace
// invalidation scans and deletes the namespace's key range.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis cache connected", zap.String("addr", cfg.Addr))
	return &RedisStore{
		client: client,
		logger: logger.With(zap.String("component", "cache_redis")),
	}, nil
}

func redisKey(namespace, key string) string {
	return redisKeyPrefix + namespace + ":" + key
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, namespace, key string) (json.RawMessage, bool, error) {
	data, err := s.client.Get(ctx, redisKey(namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.Add(1)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get failed: %w", err)
	}
	s.hits.Add(1)
	return data, true, nil
}

// Set implements Store.Set.
func (s *RedisStore) Set(ctx context.Context, namespace, key string, value json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultConfig().DefaultTTL
	}
	if err := s.client.Set(ctx, redisKey(namespace, key), []byte(value), ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// InvalidateNamespace implements Store.InvalidateNamespace.
func (s *RedisStore) InvalidateNamespace(ctx context.Context, namespace string) error {
	pattern := redisKeyPrefix + namespace + ":*"
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidate failed: %w", err)
	}
	s.invalidations.Add(int64(len(keys)))

	s.logger.Debug("namespace invalidated",
		zap.String("namespace", namespace),
		zap.Int("dropped", len(keys)))
	return nil
}

// Stats implements Store.Stats. Size is not tracked for the Redis backend.
func (s *RedisStore) Stats() Stats {
	return Stats{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Invalidations: s.invalidations.Load(),
	}
}

// Close implements Store.Close.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)

// New builds a Store from config, selecting the backend.
func New(cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.MaxEntries, logger), nil
	case "redis":
		return NewRedisStore(cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", cfg.Backend)
	}
}
