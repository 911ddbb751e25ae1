package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stackmesh/agenthub/internal/storage"
)

// Config controls the memory store. An empty DSN disables the persistent
// layer; session memory always works.
type Config struct {
	Driver string `yaml:"driver" json:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" json:"dsn" env:"DSN"`
}

// Well-known key prefixes. Agents are free to use arbitrary keys; these
// prefixes keep the commerce agents from colliding over shared concepts.
const (
	KeyNegotiation     = "negotiation/"
	KeyInventorySnap   = "inventory_snapshot/"
	KeyPendingActions  = "pending_actions/"
	KeySupplierPricing = "supplier_pricing/"
)

// DefaultConfig returns memory defaults for a single-node hub.
func DefaultConfig() Config {
	return Config{
		Driver: "sqlite",
		DSN:    "agenthub_memory.db",
	}
}

// Record is a durable per-agent fact. Unlike session entries it is shared
// across sessions and survives Forget and restarts.
type Record struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AgentID   string    `gorm:"size:64;not null;uniqueIndex:idx_agent_key" json:"agent_id"`
	Key       string    `gorm:"size:128;not null;uniqueIndex:idx_agent_key" json:"key"`
	Value     []byte    `gorm:"type:blob" json:"value"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName maps Record onto the persistent memory table.
func (Record) TableName() string { return "hub_memory_records" }

type sessionKey struct {
	agentID   string
	sessionID string
}

// Store is the session memory plus the optional persistent layer. All
// methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[sessionKey]map[string]json.RawMessage

	db     *gorm.DB
	logger *zap.Logger
}

// Open creates the store and, if a DSN is configured, connects and migrates
// the persistent layer.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		sessions: make(map[sessionKey]map[string]json.RawMessage),
		logger:   logger.With(zap.String("component", "memory")),
	}
	if cfg.DSN == "" {
		return s, nil
	}

	db, err := storage.Open(cfg.Driver, cfg.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("memory: migrate: %w", err)
	}
	s.db = db
	return s, nil
}

// Get returns a session entry. The second result reports presence.
func (s *Store) Get(agentID, sessionID, key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.sessions[sessionKey{agentID, sessionID}]
	if !ok {
		return nil, false
	}
	v, ok := entries[key]
	return v, ok
}

// Set writes a session entry. Concurrent writers to the same key race and
// the last one wins; that is the contract, not a bug.
func (s *Store) Set(agentID, sessionID, key string, value json.RawMessage) {
	sk := sessionKey{agentID, sessionID}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.sessions[sk]
	if !ok {
		entries = make(map[string]json.RawMessage)
		s.sessions[sk] = entries
	}
	entries[key] = value
}

// Snapshot returns a copy of a session's entries.
func (s *Store) Snapshot(agentID, sessionID string) map[string]json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.sessions[sessionKey{agentID, sessionID}]
	if !ok {
		return nil
	}
	out := make(map[string]json.RawMessage, len(entries))
	for k, v := range entries {
		out[k] = v
	}
	return out
}

// Forget discards the session's entries for every agent. It is the only
// deletion path and runs at session close; persistent records are untouched.
func (s *Store) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sk := range s.sessions {
		if sk.sessionID == sessionID {
			delete(s.sessions, sk)
		}
	}
}

// Sessions reports the number of live sessions.
func (s *Store) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ErrNoPersistence is returned when the persistent layer is disabled.
var ErrNoPersistence = errors.New("memory: persistent layer not configured")

// SetPersistent upserts a durable per-agent fact.
func (s *Store) SetPersistent(ctx context.Context, agentID, key string, value json.RawMessage) error {
	if s.db == nil {
		return ErrNoPersistence
	}
	rec := Record{
		AgentID:   agentID,
		Key:       key,
		Value:     []byte(value),
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "agent_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("memory: set persistent %s/%s: %w", agentID, key, err)
	}
	return nil
}

// GetPersistent reads a durable per-agent fact.
func (s *Store) GetPersistent(ctx context.Context, agentID, key string) (json.RawMessage, bool, error) {
	if s.db == nil {
		return nil, false, ErrNoPersistence
	}
	var rec Record
	err := s.db.WithContext(ctx).
		Where("agent_id = ? AND key = ?", agentID, key).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("memory: get persistent %s/%s: %w", agentID, key, err)
	}
	return json.RawMessage(rec.Value), true, nil
}

// Close releases the persistent layer's connection if one exists.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return storage.Close(s.db)
}
