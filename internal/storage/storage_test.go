package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenSQLiteInMemory(t *testing.T) {
	db, err := Open("sqlite", ":memory:", zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, db)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())

	// An in-memory database must stay pinned to one connection or a second
	// pooled connection would see an empty database.
	stats := sqlDB.Stats()
	assert.Equal(t, 1, stats.MaxOpenConnections)

	assert.NoError(t, Close(db))
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	db, err := Open("", ":memory:", nil)
	require.NoError(t, err)
	assert.NoError(t, Close(db))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	db, err := Open("oracle", "dsn", zap.NewNop())
	assert.Nil(t, db)
	assert.ErrorContains(t, err, "unsupported driver")
}

func TestDefaultPoolConfig(t *testing.T) {
	pool := DefaultPoolConfig()
	assert.Equal(t, 100, pool.MaxOpenConns)
	assert.Equal(t, 10, pool.MaxIdleConns)
	assert.Positive(t, pool.ConnMaxLifetime)
}
