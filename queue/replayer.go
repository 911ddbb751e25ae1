package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stackmesh/agenthub/health"
	"github.com/stackmesh/agenthub/types"
)

// ExecFunc executes one queued call against the live capability. The router
// supplies this; a nil error acknowledges the message.
type ExecFunc func(ctx context.Context, call types.ToolCall) error

// SpanSink receives replay spans. *trace.Recorder satisfies it.
type SpanSink interface {
	Record(span *types.Span)
}

// Replayer drains the durable queue when the hub transitions back to
// Healthy. It consumes messages strictly in sequence order, serializes
// messages that share a session, and bounds cross-session parallelism with
// a worker pool. Draining stops early if the hub degrades again mid-replay.
type Replayer struct {
	store   *Store
	monitor *health.Monitor
	exec    ExecFunc
	spans   SpanSink
	workers int
	batch   int
	logger  *zap.Logger

	mu       sync.Mutex
	draining bool

	stop chan struct{}
	done chan struct{}
}

// NewReplayer wires a replayer to the queue store and health monitor.
func NewReplayer(store *Store, monitor *health.Monitor, exec ExecFunc, spans SpanSink, workers int, logger *zap.Logger) *Replayer {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		store:   store,
		monitor: monitor,
		exec:    exec,
		spans:   spans,
		workers: workers,
		batch:   256,
		logger:  logger.With(zap.String("component", "replayer")),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the background loop. If the hub is already Healthy and
// messages survived a restart they are drained immediately.
func (r *Replayer) Start(ctx context.Context) {
	modes := r.monitor.Subscribe()
	go func() {
		defer close(r.done)
		if r.monitor.Mode() == health.Healthy {
			r.Drain(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case mode := <-modes:
				if mode == health.Healthy {
					r.Drain(ctx)
				}
			}
		}
	}()
}

// Stop terminates the background loop and waits for it to exit. An
// in-flight drain finishes its current batch first.
func (r *Replayer) Stop() {
	close(r.stop)
	<-r.done
}

// Drain replays all pending messages. It is safe to call concurrently; a
// second call while a drain is running returns immediately.
func (r *Replayer) Drain(ctx context.Context) {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return
	}
	r.draining = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.draining = false
		r.mu.Unlock()
	}()

	start := time.Now()
	var replayed, dead int
	for {
		if ctx.Err() != nil || r.monitor.Mode() != health.Healthy {
			break
		}
		msgs, err := r.store.Pending(ctx, r.batch)
		if err != nil {
			r.logger.Error("failed to read pending messages", zap.Error(err))
			return
		}
		if len(msgs) == 0 {
			break
		}
		ok, dl := r.replayBatch(ctx, msgs)
		replayed += ok
		dead += dl
		if ok == 0 && dl == 0 {
			// Nothing progressed; avoid a hot loop on a stuck head.
			break
		}
	}
	if replayed > 0 || dead > 0 {
		r.logger.Info("queue drain finished",
			zap.Int("replayed", replayed),
			zap.Int("dead_lettered", dead),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// replayBatch executes one batch. Messages are partitioned into per-session
// lanes processed serially; lanes run in parallel under the worker limit.
// Within a lane sequence order holds, and lanes are built in sequence order
// so the global ascending-seq guarantee is preserved per session.
func (r *Replayer) replayBatch(ctx context.Context, msgs []Message) (replayed, dead int) {
	laneOrder := make([]string, 0, len(msgs))
	lanes := make(map[string][]Message)
	for _, m := range msgs {
		if _, seen := lanes[m.SessionID]; !seen {
			laneOrder = append(laneOrder, m.SessionID)
		}
		lanes[m.SessionID] = append(lanes[m.SessionID], m)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, sid := range laneOrder {
		lane := lanes[sid]
		g.Go(func() error {
			for _, msg := range lane {
				if gctx.Err() != nil || r.monitor.Mode() != health.Healthy {
					return nil
				}
				ok, dl := r.replayOne(gctx, msg)
				mu.Lock()
				if ok {
					replayed++
				}
				if dl {
					dead++
				}
				mu.Unlock()
				if !ok && !dl {
					// Head of this lane is stuck; later messages in the
					// same session must wait for it.
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return replayed, dead
}

// replayOne executes a single message and settles its queue state. It
// returns (acked, deadLettered).
func (r *Replayer) replayOne(ctx context.Context, msg Message) (bool, bool) {
	span := types.NewSpan(types.SpanReplay, msg.AgentID, msg.SessionID)
	span.Tool = msg.Tool
	span.Seq = msg.Seq
	span.InputPreview = types.Preview(msg.Args)

	err := r.exec(ctx, msg.ToolCall())
	if err == nil {
		span.Seal(types.OutcomeSuccess)
		r.record(span)
		if ackErr := r.store.Ack(ctx, msg.Seq); ackErr != nil {
			r.logger.Error("failed to ack replayed message",
				zap.Int64("seq", msg.Seq), zap.Error(ackErr))
		}
		return true, false
	}

	deadLettered, failErr := r.store.Fail(ctx, msg, err)
	if failErr != nil {
		r.logger.Error("failed to record replay failure",
			zap.Int64("seq", msg.Seq), zap.Error(failErr))
	}
	span.ErrorCode = string(types.GetErrorCode(err))
	span.Seal(types.OutcomeFailure)
	r.record(span)
	if deadLettered {
		return false, true
	}
	r.logger.Warn("replay attempt failed",
		zap.Int64("seq", msg.Seq),
		zap.String("tool", msg.Tool),
		zap.Int("attempts", msg.Attempts+1),
		zap.Error(err))
	return false, false
}

func (r *Replayer) record(span *types.Span) {
	if r.spans != nil {
		r.spans.Record(span)
	}
}
