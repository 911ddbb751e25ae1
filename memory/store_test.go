package memory

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newVolatileStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionSetGet(t *testing.T) {
	s := newVolatileStore(t)

	s.Set("sales", "s1", "last_order", json.RawMessage(`{"id":"o-1"}`))
	v, ok := s.Get("sales", "s1", "last_order")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"o-1"}`, string(v))

	_, ok = s.Get("sales", "s1", "missing")
	assert.False(t, ok)
}

func TestSessionIsolation(t *testing.T) {
	s := newVolatileStore(t)
	s.Set("sales", "s1", "customer", json.RawMessage(`"acme"`))

	// Neither a different session nor a different agent sees the entry.
	_, ok := s.Get("sales", "s2", "customer")
	assert.False(t, ok)
	_, ok = s.Get("finance", "s1", "customer")
	assert.False(t, ok)
}

func TestLastWriterWins(t *testing.T) {
	s := newVolatileStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set("sales", "s1", "counter", json.RawMessage(`1`))
		}()
	}
	wg.Wait()
	v, ok := s.Get("sales", "s1", "counter")
	require.True(t, ok)
	assert.JSONEq(t, `1`, string(v))
}

func TestForgetClearsOnlyOneSession(t *testing.T) {
	s := newVolatileStore(t)
	s.Set("sales", "s1", "a", json.RawMessage(`1`))
	s.Set("sales", "s2", "a", json.RawMessage(`2`))

	s.Forget("s1")

	_, ok := s.Get("sales", "s1", "a")
	assert.False(t, ok)
	v, ok := s.Get("sales", "s2", "a")
	require.True(t, ok)
	assert.JSONEq(t, `2`, string(v))
	assert.Equal(t, 1, s.Sessions())
}

func TestForgetDropsEveryAgentInTheSession(t *testing.T) {
	s := newVolatileStore(t)
	s.Set("sales", "s1", "quote", json.RawMessage(`100`))
	s.Set("finance", "s1", "budget", json.RawMessage(`500`))
	s.Set("inventory", "s1", "reserved", json.RawMessage(`true`))
	s.Set("sales", "s2", "quote", json.RawMessage(`7`))

	// Session close wipes s1 for every agent, not just the closer's.
	s.Forget("s1")

	_, ok := s.Get("sales", "s1", "quote")
	assert.False(t, ok)
	_, ok = s.Get("finance", "s1", "budget")
	assert.False(t, ok)
	_, ok = s.Get("inventory", "s1", "reserved")
	assert.False(t, ok)

	v, ok := s.Get("sales", "s2", "quote")
	require.True(t, ok)
	assert.JSONEq(t, `7`, string(v))
	assert.Equal(t, 1, s.Sessions())
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newVolatileStore(t)
	s.Set("sales", "s1", "a", json.RawMessage(`1`))

	snap := s.Snapshot("sales", "s1")
	snap["b"] = json.RawMessage(`2`)

	_, ok := s.Get("sales", "s1", "b")
	assert.False(t, ok)
}

func TestPersistentDisabledWithoutDSN(t *testing.T) {
	s := newVolatileStore(t)
	err := s.SetPersistent(context.Background(), "buying", "supplier_price", json.RawMessage(`9.5`))
	assert.ErrorIs(t, err, ErrNoPersistence)
}

func TestPersistentSurvivesForgetAndReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	s, err := Open(Config{Driver: "sqlite", DSN: dsn}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.SetPersistent(ctx, "buying", KeySupplierPricing+"acme", json.RawMessage(`{"unit_price":9.5}`)))
	s.Set("buying", "s1", "draft_po", json.RawMessage(`{"qty":10}`))
	s.Forget("s1")

	v, ok, err := s.GetPersistent(ctx, "buying", KeySupplierPricing+"acme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"unit_price":9.5}`, string(v))
	require.NoError(t, s.Close())

	reopened, err := Open(Config{Driver: "sqlite", DSN: dsn}, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err = reopened.GetPersistent(ctx, "buying", KeySupplierPricing+"acme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"unit_price":9.5}`, string(v))
}

func TestPersistentUpsert(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()
	s, err := Open(Config{Driver: "sqlite", DSN: dsn}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetPersistent(ctx, "buying", KeySupplierPricing+"acme", json.RawMessage(`{"unit_price":9.5}`)))
	require.NoError(t, s.SetPersistent(ctx, "buying", KeySupplierPricing+"acme", json.RawMessage(`{"unit_price":8.0}`)))

	v, ok, err := s.GetPersistent(ctx, "buying", KeySupplierPricing+"acme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"unit_price":8.0}`, string(v))
}
