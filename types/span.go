package types

import (
	"time"

	"github.com/google/uuid"
)

// SpanKind classifies a trace span.
type SpanKind string

const (
	SpanToolCall SpanKind = "tool_call"
	SpanHandoff  SpanKind = "handoff"
	SpanQueued   SpanKind = "queued"
	SpanReplay   SpanKind = "replay"
)

// Outcome is the terminal state of a span.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeQueued  Outcome = "queued"
)

// PreviewLimit bounds input/output previews recorded on spans.
const PreviewLimit = 256

// Span is one recorded unit of work. Spans form a tree per top-level agent
// request via ParentSpanID and are immutable once sealed.
type Span struct {
	SpanID        string   `json:"span_id"`
	ParentSpanID  string   `json:"parent_span_id,omitempty"`
	Kind          SpanKind `json:"kind"`
	Actor         string   `json:"actor"`
	SessionID     string   `json:"session_id,omitempty"`
	Tool          string   `json:"tool,omitempty"`
	Target        string   `json:"target,omitempty"`
	Seq           int64    `json:"seq,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	InputPreview  string   `json:"input_preview,omitempty"`
	OutputPreview string   `json:"output_preview,omitempty"`
	Outcome       Outcome  `json:"outcome"`
	ErrorCode     string   `json:"error_code,omitempty"`
}

// NewSpan starts a span of the given kind for an actor.
func NewSpan(kind SpanKind, actor, sessionID string) *Span {
	return &Span{
		SpanID:    uuid.New().String(),
		Kind:      kind,
		Actor:     actor,
		SessionID: sessionID,
		StartedAt: time.Now().UTC(),
	}
}

// Child starts a span parented to s.
func (s *Span) Child(kind SpanKind, actor string) *Span {
	c := NewSpan(kind, actor, s.SessionID)
	c.ParentSpanID = s.SpanID
	return c
}

// Seal completes the span with an outcome. Sealing is idempotent: the first
// call wins and later calls are ignored.
func (s *Span) Seal(outcome Outcome) *Span {
	if s.EndedAt.IsZero() {
		s.EndedAt = time.Now().UTC()
		s.Outcome = outcome
	}
	return s
}

// Sealed reports whether the span has been completed.
func (s *Span) Sealed() bool {
	return !s.EndedAt.IsZero()
}

// Preview truncates raw input/output to the recorded preview size.
func Preview(b []byte) string {
	if len(b) > PreviewLimit {
		return string(b[:PreviewLimit])
	}
	return string(b)
}
