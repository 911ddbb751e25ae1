package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	store, err := NewRedisStore(RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	return mr, store
}

func TestRedisStore_SetAndGet(t *testing.T) {
	mr, s := setupRedisStore(t)
	defer mr.Close()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "inventory", "k1", json.RawMessage(`{"stock":7}`), time.Minute))

	v, ok, err := s.Get(ctx, "inventory", "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"stock":7}`, string(v))
}

func TestRedisStore_MissAndExpiry(t *testing.T) {
	mr, s := setupRedisStore(t)
	defer mr.Close()
	defer s.Close()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "inventory", "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "inventory", "k1", json.RawMessage(`1`), 30*time.Second))
	mr.FastForward(31 * time.Second)

	_, ok, err = s.Get(ctx, "inventory", "k1")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must be a miss")
}

func TestRedisStore_NamespaceInvalidation(t *testing.T) {
	mr, s := setupRedisStore(t)
	defer mr.Close()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "inventory", "k1", json.RawMessage(`1`), time.Minute))
	require.NoError(t, s.Set(ctx, "inventory", "k2", json.RawMessage(`2`), time.Minute))
	require.NoError(t, s.Set(ctx, "reports", "k3", json.RawMessage(`3`), time.Minute))

	require.NoError(t, s.InvalidateNamespace(ctx, "inventory"))

	_, ok, _ := s.Get(ctx, "inventory", "k1")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "reports", "k3")
	assert.True(t, ok)
}

func TestNew_BackendSelection(t *testing.T) {
	s, err := New(Config{Backend: "memory", MaxEntries: 4}, zap.NewNop())
	require.NoError(t, err)
	_, isMemory := s.(*MemoryStore)
	assert.True(t, isMemory)

	_, err = New(Config{Backend: "bogus"}, zap.NewNop())
	assert.Error(t, err)
}
