package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stackmesh/agenthub/health"
	"github.com/stackmesh/agenthub/types"
)

type spanCapture struct {
	mu    sync.Mutex
	spans []*types.Span
}

func (c *spanCapture) Record(span *types.Span) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, span)
}

func (c *spanCapture) all() []*types.Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Span, len(c.spans))
	copy(out, c.spans)
	return out
}

func TestDrainReplaysInSequenceOrder(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Enqueue(ctx, testCall(t, "update_stock", "s1", fmt.Sprintf(`{"sku":"sku-%d"}`, i)))
		require.NoError(t, err)
	}

	var mu sync.Mutex
	var executed []string
	exec := func(_ context.Context, call types.ToolCall) error {
		mu.Lock()
		defer mu.Unlock()
		executed = append(executed, string(call.Args))
		return nil
	}

	monitor := health.NewMonitor(health.DefaultConfig(), zap.NewNop())
	sink := &spanCapture{}
	r := NewReplayer(s, monitor, exec, sink, 4, zap.NewNop())
	r.Drain(ctx)

	require.Len(t, executed, 5)
	for i, args := range executed {
		assert.JSONEq(t, fmt.Sprintf(`{"sku":"sku-%d"}`, i), args)
	}

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	spans := sink.all()
	require.Len(t, spans, 5)
	for _, span := range spans {
		assert.Equal(t, types.SpanReplay, span.Kind)
		assert.Equal(t, types.OutcomeSuccess, span.Outcome)
		assert.True(t, span.Sealed())
		assert.Positive(t, span.Seq)
	}
}

func TestDrainSerializesWithinSession(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()
	sessions := []string{"s1", "s2", "s1", "s2", "s1"}
	for i, sid := range sessions {
		_, err := s.Enqueue(ctx, testCall(t, "create_order", sid, fmt.Sprintf(`{"n":%d}`, i)))
		require.NoError(t, err)
	}

	var mu sync.Mutex
	perSession := make(map[string][]int64)
	exec := func(_ context.Context, call types.ToolCall) error {
		mu.Lock()
		defer mu.Unlock()
		perSession[call.SessionID] = append(perSession[call.SessionID], 1)
		return nil
	}

	monitor := health.NewMonitor(health.DefaultConfig(), zap.NewNop())
	sink := &spanCapture{}
	r := NewReplayer(s, monitor, exec, sink, 4, zap.NewNop())
	r.Drain(ctx)

	assert.Len(t, perSession["s1"], 3)
	assert.Len(t, perSession["s2"], 2)

	// Per-session replay order follows the enqueue sequence.
	var s1Seqs []int64
	for _, span := range sink.all() {
		if span.SessionID == "s1" {
			s1Seqs = append(s1Seqs, span.Seq)
		}
	}
	require.Len(t, s1Seqs, 3)
	assert.IsIncreasing(t, s1Seqs)
}

func TestDrainDeadLettersAfterBudget(t *testing.T) {
	s := newTestStore(t, Config{MaxAttempts: 1})
	ctx := context.Background()
	_, err := s.Enqueue(ctx, testCall(t, "process_payment", "s1", `{"order_id":"o-1"}`))
	require.NoError(t, err)

	exec := func(context.Context, types.ToolCall) error {
		return types.NewError(types.ErrCapabilityUnavailable, "gateway down")
	}

	monitor := health.NewMonitor(health.DefaultConfig(), zap.NewNop())
	sink := &spanCapture{}
	r := NewReplayer(s, monitor, exec, sink, 2, zap.NewNop())
	r.Drain(ctx)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	dls, err := s.DeadLetters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dls, 1)
	assert.Equal(t, "process_payment", dls[0].Tool)

	spans := sink.all()
	require.Len(t, spans, 1)
	assert.Equal(t, types.OutcomeFailure, spans[0].Outcome)
	assert.Equal(t, string(types.ErrCapabilityUnavailable), spans[0].ErrorCode)
}

func TestDrainKeepsFailedMessageUntilBudgetSpent(t *testing.T) {
	s := newTestStore(t, Config{MaxAttempts: 3})
	ctx := context.Background()
	_, err := s.Enqueue(ctx, testCall(t, "update_stock", "s1", `{"sku":"A"}`))
	require.NoError(t, err)

	exec := func(context.Context, types.ToolCall) error {
		return errors.New("transient erp failure")
	}
	monitor := health.NewMonitor(health.DefaultConfig(), zap.NewNop())
	r := NewReplayer(s, monitor, exec, &spanCapture{}, 2, zap.NewNop())

	// Each drain spends one attempt on the stuck head.
	r.Drain(ctx)
	msgs, err := s.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].Attempts)

	r.Drain(ctx)
	r.Drain(ctx)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	dls, err := s.DeadLetters(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, dls, 1)
}

func TestStartDrainsBacklogWhenAlreadyHealthy(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()
	_, err := s.Enqueue(ctx, testCall(t, "update_stock", "s1", `{"sku":"A"}`))
	require.NoError(t, err)

	done := make(chan struct{})
	exec := func(context.Context, types.ToolCall) error {
		close(done)
		return nil
	}

	monitor := health.NewMonitor(health.DefaultConfig(), zap.NewNop())
	r := NewReplayer(s, monitor, exec, &spanCapture{}, 2, zap.NewNop())
	r.Start(ctx)
	defer r.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("backlog was not drained on start")
	}
}
