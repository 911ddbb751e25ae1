package handoff

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stackmesh/agenthub/types"
)

// SpanSink receives handoff spans. *trace.Recorder satisfies it.
type SpanSink interface {
	Record(span *types.Span)
}

// Coordinator validates handoffs against the graph and records each attempt.
type Coordinator struct {
	graph  *Graph
	spans  SpanSink
	logger *zap.Logger
}

// NewCoordinator wires a coordinator to a graph and a span sink.
func NewCoordinator(graph *Graph, spans SpanSink, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		graph:  graph,
		spans:  spans,
		logger: logger.With(zap.String("component", "handoff")),
	}
}

// Graph exposes the delegation graph for inspection.
func (c *Coordinator) Graph() *Graph { return c.graph }

// Result describes a settled handoff attempt.
type Result struct {
	From      string `json:"from"`
	To        string `json:"to"`
	SessionID string `json:"session_id"`
	Accepted  bool   `json:"accepted"`
	SpanID    string `json:"span_id"`
}

// Attempt validates one delegation. A declared edge yields an accepted
// result and a nil error; an undeclared edge yields INVALID_HANDOFF. Either
// way exactly one span is recorded, parented under the originating request's
// span when one is supplied. Context carries the request identity for
// logging only; validation itself never blocks.
func (c *Coordinator) Attempt(ctx context.Context, from, to, sessionID string, parent *types.Span) (*Result, error) {
	var span *types.Span
	if parent != nil {
		span = parent.Child(types.SpanHandoff, from)
	} else {
		span = types.NewSpan(types.SpanHandoff, from, sessionID)
	}
	span.Target = to

	if !c.graph.Allowed(from, to) {
		err := types.NewError(types.ErrInvalidHandoff,
			fmt.Sprintf("agent %q may not hand off to %q", from, to)).
			WithHTTPStatus(403)
		span.ErrorCode = string(types.ErrInvalidHandoff)
		span.Seal(types.OutcomeFailure)
		c.record(span)
		requestID, _ := types.RequestID(ctx)
		c.logger.Warn("rejected handoff",
			zap.String("from", from),
			zap.String("to", to),
			zap.String("session_id", sessionID),
			zap.String("request_id", requestID))
		return &Result{From: from, To: to, SessionID: sessionID, SpanID: span.SpanID}, err
	}

	span.Seal(types.OutcomeSuccess)
	c.record(span)
	c.logger.Debug("handoff accepted",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("session_id", sessionID))
	return &Result{From: from, To: to, SessionID: sessionID, Accepted: true, SpanID: span.SpanID}, nil
}

func (c *Coordinator) record(span *types.Span) {
	if c.spans != nil {
		c.spans.Record(span)
	}
}
