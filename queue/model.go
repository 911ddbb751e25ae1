package queue

import (
	"encoding/json"
	"time"

	"github.com/stackmesh/agenthub/types"
)

// Message is a mutating tool call persisted while the hub was Degraded.
// Seq is assigned by the database autoincrement and establishes the global
// replay order.
type Message struct {
	Seq            int64     `gorm:"primaryKey;autoIncrement" json:"seq"`
	Tool           string    `gorm:"size:128;not null;index" json:"tool"`
	Args           []byte    `gorm:"type:blob" json:"args"`
	AgentID        string    `gorm:"size:64;not null" json:"agent_id"`
	SessionID      string    `gorm:"size:64;not null;index" json:"session_id"`
	IdempotencyKey string    `gorm:"size:80;not null;uniqueIndex" json:"idempotency_key"`
	Attempts       int       `gorm:"not null;default:0" json:"attempts"`
	EnqueuedAt     time.Time `gorm:"not null" json:"enqueued_at"`
}

// TableName maps Message onto the queue table.
func (Message) TableName() string { return "hub_queue" }

// ToolCall reconstructs the original call for replay.
func (m *Message) ToolCall() types.ToolCall {
	return types.ToolCall{
		Tool:           m.Tool,
		Args:           json.RawMessage(m.Args),
		AgentID:        m.AgentID,
		SessionID:      m.SessionID,
		IdempotencyKey: m.IdempotencyKey,
	}
}

// DeadLetter records a message that exhausted its replay attempt budget.
// Dead letters are kept for operator inspection and manual resolution.
type DeadLetter struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Seq            int64     `gorm:"not null;index" json:"seq"`
	Tool           string    `gorm:"size:128;not null" json:"tool"`
	Args           []byte    `gorm:"type:blob" json:"args"`
	AgentID        string    `gorm:"size:64;not null" json:"agent_id"`
	SessionID      string    `gorm:"size:64;not null" json:"session_id"`
	IdempotencyKey string    `gorm:"size:80;not null" json:"idempotency_key"`
	Attempts       int       `gorm:"not null" json:"attempts"`
	LastError      string    `gorm:"type:text" json:"last_error"`
	EnqueuedAt     time.Time `gorm:"not null" json:"enqueued_at"`
	DeadAt         time.Time `gorm:"not null" json:"dead_at"`
}

// TableName maps DeadLetter onto the dead-letter table.
func (DeadLetter) TableName() string { return "hub_dead_letters" }
