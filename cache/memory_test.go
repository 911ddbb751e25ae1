package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryStore_SetAndGet(t *testing.T) {
	s := NewMemoryStore(10, zap.NewNop())
	ctx := context.Background()

	err := s.Set(ctx, "inventory", "k1", json.RawMessage(`{"stock":42}`), time.Minute)
	require.NoError(t, err)

	v, ok, err := s.Get(ctx, "inventory", "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"stock":42}`, string(v))

	_, ok, err = s.Get(ctx, "inventory", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	s := NewMemoryStore(10, zap.NewNop(), WithClock(func() time.Time { return clock() }))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "inventory", "k1", json.RawMessage(`1`), 120*time.Second))

	// Inside the TTL window the entry is served.
	clock = func() time.Time { return now.Add(60 * time.Second) }
	_, ok, err := s.Get(ctx, "inventory", "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Past created_at+ttl the entry is absent, never stale-but-usable.
	clock = func() time.Time { return now.Add(130 * time.Second) }
	_, ok, err = s.Get(ctx, "inventory", "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_NamespaceInvalidation(t *testing.T) {
	s := NewMemoryStore(10, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "inventory", "k1", json.RawMessage(`1`), time.Minute))
	require.NoError(t, s.Set(ctx, "inventory", "k2", json.RawMessage(`2`), time.Minute))
	require.NoError(t, s.Set(ctx, "reports", "k3", json.RawMessage(`3`), time.Minute))

	require.NoError(t, s.InvalidateNamespace(ctx, "inventory"))

	_, ok, _ := s.Get(ctx, "inventory", "k1")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "inventory", "k2")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "reports", "k3")
	assert.True(t, ok, "other namespaces must survive")
}

func TestMemoryStore_EvictsOldestAtCapacity(t *testing.T) {
	now := time.Now()
	i := 0
	s := NewMemoryStore(2, zap.NewNop(), WithClock(func() time.Time {
		i++
		return now.Add(time.Duration(i) * time.Millisecond)
	}))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "n", "k1", json.RawMessage(`1`), time.Minute))
	require.NoError(t, s.Set(ctx, "n", "k2", json.RawMessage(`2`), time.Minute))
	require.NoError(t, s.Set(ctx, "n", "k3", json.RawMessage(`3`), time.Minute))

	_, ok, _ := s.Get(ctx, "n", "k1")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok, _ = s.Get(ctx, "n", "k3")
	assert.True(t, ok)
	assert.Equal(t, int64(1), s.Stats().Evictions)
}

func TestMemoryStore_Stats(t *testing.T) {
	s := NewMemoryStore(10, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "n", "k1", json.RawMessage(`1`), time.Minute))
	s.Get(ctx, "n", "k1")
	s.Get(ctx, "n", "k1")
	s.Get(ctx, "n", "nope")

	stats := s.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore(10, zap.NewNop())
	require.NoError(t, s.Close())

	err := s.Set(context.Background(), "n", "k", json.RawMessage(`1`), time.Minute)
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = s.Get(context.Background(), "n", "k")
	assert.ErrorIs(t, err, ErrClosed)
}
