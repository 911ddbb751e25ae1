package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

type memoryEntry struct {
	namespace string
	value     json.RawMessage
	createdAt time.Time
	expiresAt time.Time
}

// MemoryStore is the in-process Store implementation. Entries are
// invalidated, never mutated in place; a Set of an existing key installs a
// fresh entry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry

	maxEntries int
	now        func() time.Time
	logger     *zap.Logger
	stats      Stats
	closed     bool
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an in-process cache store.
func NewMemoryStore(maxEntries int, logger *zap.Logger, opts ...MemoryOption) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxEntries <= 0 {
		maxEntries = DefaultConfig().MaxEntries
	}
	s := &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "cache_memory")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func compositeKey(namespace, key string) string {
	return namespace + ":" + key
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, namespace, key string) (json.RawMessage, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	ck := compositeKey(namespace, key)

	s.mu.RLock()
	ent, ok := s.entries[ck]
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return nil, false, ErrClosed
	}

	if !ok {
		s.mu.Lock()
		s.stats.Misses++
		s.mu.Unlock()
		return nil, false, nil
	}

	if s.now().After(ent.expiresAt) {
		s.mu.Lock()
		delete(s.entries, ck)
		s.stats.Misses++
		s.stats.Size = len(s.entries)
		s.mu.Unlock()
		return nil, false, nil
	}

	s.mu.Lock()
	s.stats.Hits++
	s.mu.Unlock()

	s.logger.Debug("cache hit", zap.String("namespace", namespace), zap.String("key", key))
	return ent.value, true, nil
}

// Set implements Store.Set.
func (s *MemoryStore) Set(ctx context.Context, namespace, key string, value json.RawMessage, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultConfig().DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}

	now := s.now()
	s.entries[compositeKey(namespace, key)] = &memoryEntry{
		namespace: namespace,
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	s.stats.Size = len(s.entries)

	s.logger.Debug("cached result",
		zap.String("namespace", namespace),
		zap.Duration("ttl", ttl))
	return nil
}

// InvalidateNamespace implements Store.InvalidateNamespace.
func (s *MemoryStore) InvalidateNamespace(ctx context.Context, namespace string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	dropped := 0
	for ck, ent := range s.entries {
		if ent.namespace == namespace {
			delete(s.entries, ck)
			dropped++
		}
	}
	s.stats.Invalidations += int64(dropped)
	s.stats.Size = len(s.entries)

	if dropped > 0 {
		s.logger.Debug("namespace invalidated",
			zap.String("namespace", namespace),
			zap.Int("dropped", dropped))
	}
	return nil
}

// Stats implements Store.Stats.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Close implements Store.Close.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = make(map[string]*memoryEntry)
	return nil
}

func (s *MemoryStore) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time

	for ck, ent := range s.entries {
		if oldestKey == "" || ent.createdAt.Before(oldestTime) {
			oldestKey = ck
			oldestTime = ent.createdAt
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
		s.stats.Evictions++
	}
}

var _ Store = (*MemoryStore)(nil)
