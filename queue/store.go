package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/stackmesh/agenthub/internal/storage"
	"github.com/stackmesh/agenthub/types"
)

// Config controls the durable queue backend.
type Config struct {
	// Driver selects the database backend: "sqlite" (default) or "postgres".
	Driver string `yaml:"driver" json:"driver" env:"DRIVER"`
	// DSN is the database connection string. For sqlite this is a file path;
	// ":memory:" keeps the queue in process memory (tests only, not durable).
	DSN string `yaml:"dsn" json:"dsn" env:"DSN"`
	// Capacity bounds the number of pending messages. Enqueue beyond it
	// fails with QUEUE_EXHAUSTED rather than growing without limit.
	Capacity int `yaml:"capacity" json:"capacity" env:"CAPACITY"`
	// MaxAttempts is the replay attempt budget before dead-lettering.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" env:"MAX_ATTEMPTS"`
}

// DefaultConfig returns queue defaults suitable for a single-node hub.
func DefaultConfig() Config {
	return Config{
		Driver:      "sqlite",
		DSN:         "agenthub_queue.db",
		Capacity:    10000,
		MaxAttempts: 3,
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	switch c.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("queue: unsupported driver %q", c.Driver)
	}
	if c.DSN == "" {
		return errors.New("queue: dsn is required")
	}
	if c.Capacity <= 0 {
		return errors.New("queue: capacity must be positive")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("queue: max_attempts must be positive")
	}
	return nil
}

// Store is the durable queue. All operations are safe for concurrent use;
// ordering is delegated to the database's autoincrement sequence.
type Store struct {
	db     *gorm.DB
	cfg    Config
	logger *zap.Logger
}

// Open connects to the configured database and migrates the queue tables.
// Messages left over from a previous run stay pending, so a restart resumes
// exactly where the crashed process stopped.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := storage.Open(cfg.Driver, cfg.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}
	if err := db.AutoMigrate(&Message{}, &DeadLetter{}); err != nil {
		return nil, fmt.Errorf("queue: migrate: %w", err)
	}

	s := &Store{db: db, cfg: cfg, logger: logger.With(zap.String("component", "queue"))}

	pending, err := s.Len(context.Background())
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		s.logger.Info("recovered pending messages from previous run", zap.Int64("pending", pending))
	}
	return s, nil
}

// Enqueue persists a mutating call and returns its assigned sequence number.
// The idempotency key is a caller retry token: a key already queued returns
// the existing sequence instead of a duplicate row. Distinct calls carry
// distinct keys, so identical args never collapse two logical mutations.
// The dedup lookup, capacity check and insert run in one transaction.
func (s *Store) Enqueue(ctx context.Context, call types.ToolCall) (int64, error) {
	if call.IdempotencyKey == "" {
		return 0, errors.New("queue: idempotency key is required")
	}

	msg := Message{
		Tool:           call.Tool,
		Args:           []byte(call.Args),
		AgentID:        call.AgentID,
		SessionID:      call.SessionID,
		IdempotencyKey: call.IdempotencyKey,
		EnqueuedAt:     time.Now().UTC(),
	}
	deduped := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Message
		err := tx.Where("idempotency_key = ?", call.IdempotencyKey).First(&existing).Error
		if err == nil {
			msg = existing
			deduped = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("queue: lookup: %w", err)
		}

		var pending int64
		if err := tx.Model(&Message{}).Count(&pending).Error; err != nil {
			return fmt.Errorf("queue: count: %w", err)
		}
		if pending >= int64(s.cfg.Capacity) {
			return types.NewError(types.ErrQueueExhausted,
				fmt.Sprintf("durable queue is full (%d pending)", pending)).
				WithTool(call.Tool).
				WithHTTPStatus(503)
		}

		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("queue: enqueue: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if deduped {
		return msg.Seq, nil
	}
	s.logger.Info("call queued for replay",
		zap.Int64("seq", msg.Seq),
		zap.String("tool", msg.Tool),
		zap.String("session_id", msg.SessionID))
	return msg.Seq, nil
}

// SessionBacklog reports how many queued messages a session still has
// awaiting replay.
func (s *Store) SessionBacklog(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Message{}).
		Where("session_id = ?", sessionID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("queue: session backlog: %w", err)
	}
	return n, nil
}

// Pending returns up to limit messages in ascending sequence order.
func (s *Store) Pending(ctx context.Context, limit int) ([]Message, error) {
	var msgs []Message
	q := s.db.WithContext(ctx).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("queue: pending: %w", err)
	}
	return msgs, nil
}

// Len reports the number of pending messages.
func (s *Store) Len(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Message{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("queue: count: %w", err)
	}
	return n, nil
}

// Ack removes a successfully replayed message.
func (s *Store) Ack(ctx context.Context, seq int64) error {
	if err := s.db.WithContext(ctx).Delete(&Message{}, seq).Error; err != nil {
		return fmt.Errorf("queue: ack seq %d: %w", seq, err)
	}
	return nil
}

// Fail records a replay failure. The message stays queued with its attempt
// count incremented until the budget is spent, at which point it moves to
// the dead-letter table in a single transaction. The returned flag reports
// whether the message was dead-lettered.
func (s *Store) Fail(ctx context.Context, msg Message, cause error) (bool, error) {
	attempts := msg.Attempts + 1
	if attempts < s.cfg.MaxAttempts {
		err := s.db.WithContext(ctx).Model(&Message{}).
			Where("seq = ?", msg.Seq).
			Update("attempts", attempts).Error
		if err != nil {
			return false, fmt.Errorf("queue: record attempt seq %d: %w", msg.Seq, err)
		}
		return false, nil
	}

	dl := DeadLetter{
		Seq:            msg.Seq,
		Tool:           msg.Tool,
		Args:           msg.Args,
		AgentID:        msg.AgentID,
		SessionID:      msg.SessionID,
		IdempotencyKey: msg.IdempotencyKey,
		Attempts:       attempts,
		EnqueuedAt:     msg.EnqueuedAt,
		DeadAt:         time.Now().UTC(),
	}
	if cause != nil {
		dl.LastError = cause.Error()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&dl).Error; err != nil {
			return err
		}
		return tx.Delete(&Message{}, msg.Seq).Error
	})
	if err != nil {
		return false, fmt.Errorf("queue: dead-letter seq %d: %w", msg.Seq, err)
	}
	s.logger.Warn("message dead-lettered",
		zap.Int64("seq", msg.Seq),
		zap.String("tool", msg.Tool),
		zap.Int("attempts", attempts))
	return true, nil
}

// DeadLetters returns up to limit dead-lettered messages, oldest first.
func (s *Store) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	var dls []DeadLetter
	q := s.db.WithContext(ctx).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&dls).Error; err != nil {
		return nil, fmt.Errorf("queue: dead letters: %w", err)
	}
	return dls, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return storage.Close(s.db)
}
