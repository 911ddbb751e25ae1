package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ToolCall is a single tool invocation issued by an agent.
type ToolCall struct {
	Tool      string          `json:"tool"`
	Args      json.RawMessage `json:"args,omitempty"`
	AgentID   string          `json:"agent_id"`
	SessionID string          `json:"session_id"`

	// IdempotencyKey identifies one logical request, not its content. A
	// caller retrying a mutation supplies the same key and the queue dedups;
	// when absent, a queued mutation is assigned a fresh unique key so two
	// distinct calls with identical args never collapse. Cache keys for
	// reads are derived from Tool+Args separately.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Result is a completed tool invocation.
type Result struct {
	Tool      string          `json:"tool"`
	Value     json.RawMessage `json:"value"`
	FromCache bool            `json:"from_cache"`
	Duration  time.Duration   `json:"duration"`
}

// DegradedAck acknowledges a mutating call accepted while the hub is
// Degraded. The call is durably queued and will be replayed on recovery.
type DegradedAck struct {
	Status string `json:"status"` // always "queued"
	Seq    int64  `json:"sequence_number"`
}

// NewDegradedAck builds the acknowledgment for a queued call.
func NewDegradedAck(seq int64) *DegradedAck {
	return &DegradedAck{Status: "queued", Seq: seq}
}

// CacheKey derives a deterministic cache key for a read from the tool name
// and its arguments. Arguments are canonicalized through an unmarshal/marshal
// round trip so that JSON object key order does not affect the key.
func CacheKey(tool string, args json.RawMessage) string {
	canonical := args
	if len(args) > 0 {
		var v any
		if err := json.Unmarshal(args, &v); err == nil {
			if b, err := json.Marshal(v); err == nil {
				canonical = b
			}
		}
	}
	h := sha256.Sum256(append([]byte(tool+":"), canonical...))
	return hex.EncodeToString(h[:])
}
