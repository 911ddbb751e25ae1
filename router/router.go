package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stackmesh/agenthub/health"
	"github.com/stackmesh/agenthub/types"
)

// ResultCache is the slice of the cache API the router needs.
type ResultCache interface {
	Get(ctx context.Context, namespace, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, namespace, key string, value json.RawMessage, ttl time.Duration) error
	InvalidateNamespace(ctx context.Context, namespace string) error
}

// Queue accepts mutating calls for deferred replay and reports whether a
// session still has calls awaiting it.
type Queue interface {
	Enqueue(ctx context.Context, call types.ToolCall) (int64, error)
	SessionBacklog(ctx context.Context, sessionID string) (int64, error)
}

// SpanSink receives invocation spans. *trace.Recorder satisfies it.
type SpanSink interface {
	Record(span *types.Span)
}

// Metrics receives per-invocation observations. internal/metrics implements
// it; a nil Metrics disables instrumentation.
type Metrics interface {
	ObserveInvoke(tool string, outcome string, fromCache bool, duration time.Duration)
	QueueDepthDelta(delta int)
}

// Response is the outcome of Invoke: exactly one of Result or Queued is set.
type Response struct {
	Result *types.Result      `json:"result,omitempty"`
	Queued *types.DegradedAck `json:"queued,omitempty"`
}

// Router is the invoke path. All dependencies are fixed at construction.
type Router struct {
	registry *Registry
	cache    ResultCache
	monitor  *health.Monitor
	queue    Queue
	spans    SpanSink
	metrics  Metrics
	logger   *zap.Logger
}

// New assembles a router. cache, queue, spans and metrics may be nil when
// the corresponding behavior is not wanted (tests mostly).
func New(registry *Registry, cache ResultCache, monitor *health.Monitor, queue Queue, spans SpanSink, metrics Metrics, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: registry,
		cache:    cache,
		monitor:  monitor,
		queue:    queue,
		spans:    spans,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "router")),
	}
}

// Registry exposes the tool table for the status surface.
func (r *Router) Registry() *Registry { return r.registry }

// Invoke routes one tool call. Every invocation, whatever its path, seals
// and records exactly one span.
func (r *Router) Invoke(ctx context.Context, call types.ToolCall) (*Response, error) {
	started := time.Now()
	handler, policy, ok := r.registry.Lookup(call.Tool)
	if !ok {
		span := r.startSpan(call)
		span.ErrorCode = string(types.ErrToolNotFound)
		span.Seal(types.OutcomeFailure)
		r.record(span)
		r.observe(call.Tool, "failure", false, time.Since(started))
		return nil, types.NewError(types.ErrToolNotFound,
			fmt.Sprintf("no tool named %q is registered", call.Tool)).
			WithTool(call.Tool).
			WithHTTPStatus(404)
	}

	span := r.startSpan(call)

	if policy.Cacheable && r.cache != nil {
		cacheKey := types.CacheKey(call.Tool, call.Args)
		value, hit, err := r.cache.Get(ctx, policy.Namespace, cacheKey)
		if err != nil {
			r.logger.Warn("cache read failed, falling through to live call",
				zap.String("tool", call.Tool), zap.Error(err))
		} else if hit {
			span.OutputPreview = types.Preview(value)
			span.Seal(types.OutcomeSuccess)
			r.record(span)
			d := time.Since(started)
			r.observe(call.Tool, "success", true, d)
			return &Response{Result: &types.Result{
				Tool:      call.Tool,
				Value:     value,
				FromCache: true,
				Duration:  d,
			}}, nil
		}
	}

	if r.monitor.Mode() == health.Degraded {
		return r.divert(ctx, call, policy, span, started)
	}

	// A mutation whose session still has queued messages must land after
	// them, so it joins the queue even though the hub is Healthy again.
	if policy.Kind == KindMutating && policy.Queueable && r.queue != nil {
		backlog, err := r.queue.SessionBacklog(ctx, call.SessionID)
		if err != nil {
			r.logger.Warn("session backlog check failed",
				zap.String("session_id", call.SessionID), zap.Error(err))
		} else if backlog > 0 {
			return r.divert(ctx, call, policy, span, started)
		}
	}

	value, err := r.execute(ctx, handler, policy, call.Args)
	r.monitor.ReportResult(policy.Group, err == nil)
	if err != nil {
		// A transient failure on a queueable mutation becomes a deferred
		// replay rather than a lost write. The replay carries the original
		// idempotency key so the capability can spot a partially applied
		// earlier attempt.
		if policy.Queueable && types.IsTransient(err) {
			return r.divert(ctx, call, policy, span, started)
		}
		span.ErrorCode = string(types.GetErrorCode(err))
		span.Seal(types.OutcomeFailure)
		r.record(span)
		r.observe(call.Tool, "failure", false, time.Since(started))
		return nil, err
	}

	r.settleSuccess(ctx, call, policy, value)
	span.OutputPreview = types.Preview(value)
	span.Seal(types.OutcomeSuccess)
	r.record(span)
	d := time.Since(started)
	r.observe(call.Tool, "success", false, d)
	return &Response{Result: &types.Result{
		Tool:     call.Tool,
		Value:    value,
		Duration: d,
	}}, nil
}

// Replay executes a queued call against the live capability. The replayer
// owns retry accounting and span emission; this path only runs the handler
// and settles the cache.
func (r *Router) Replay(ctx context.Context, call types.ToolCall) error {
	handler, policy, ok := r.registry.Lookup(call.Tool)
	if !ok {
		return types.NewError(types.ErrToolNotFound,
			fmt.Sprintf("no tool named %q is registered", call.Tool)).
			WithTool(call.Tool)
	}
	value, err := r.execute(ctx, handler, policy, call.Args)
	r.monitor.ReportResult(policy.Group, err == nil)
	if err != nil {
		return err
	}
	r.settleSuccess(ctx, call, policy, value)
	return nil
}

// divert queues a mutating call or rejects a read while the capability is
// unavailable.
func (r *Router) divert(ctx context.Context, call types.ToolCall, policy Policy, span *types.Span, started time.Time) (*Response, error) {
	if policy.Kind == KindMutating && policy.Queueable && r.queue != nil {
		// Each request gets its own key. A caller retrying may supply the
		// same key and dedup; two distinct orders with identical args must
		// both be queued.
		if call.IdempotencyKey == "" {
			call.IdempotencyKey = uuid.NewString()
		}
		seq, err := r.queue.Enqueue(ctx, call)
		if err != nil {
			span.ErrorCode = string(types.GetErrorCode(err))
			span.Seal(types.OutcomeFailure)
			r.record(span)
			r.observe(call.Tool, "failure", false, time.Since(started))
			return nil, err
		}
		span.Kind = types.SpanQueued
		span.Seq = seq
		span.Seal(types.OutcomeQueued)
		r.record(span)
		r.observe(call.Tool, "queued", false, time.Since(started))
		if r.metrics != nil {
			r.metrics.QueueDepthDelta(1)
		}
		return &Response{Queued: types.NewDegradedAck(seq)}, nil
	}

	err := types.NewError(types.ErrCapabilityUnavailable,
		fmt.Sprintf("capability for %q is degraded", call.Tool)).
		WithTool(call.Tool).
		WithHTTPStatus(503).
		WithRetryable(true)
	span.ErrorCode = string(types.ErrCapabilityUnavailable)
	span.Seal(types.OutcomeFailure)
	r.record(span)
	r.observe(call.Tool, "failure", false, time.Since(started))
	return nil, err
}

// execute runs one handler under the policy timeout and normalizes deadline
// errors into the hub taxonomy.
func (r *Router) execute(ctx context.Context, handler Handler, policy Policy, args json.RawMessage) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()
	value, err := handler(callCtx, args)
	if err == nil {
		return value, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, types.NewError(types.ErrCapabilityTimeout,
			fmt.Sprintf("capability did not answer within %s", policy.Timeout)).
			WithCause(err).
			WithHTTPStatus(504).
			WithRetryable(true)
	}
	return nil, err
}

// settleSuccess stores cacheable results and wipes namespaces invalidated by
// a successful mutation. Cache trouble is logged, never surfaced: the call
// itself succeeded.
func (r *Router) settleSuccess(ctx context.Context, call types.ToolCall, policy Policy, value json.RawMessage) {
	if r.cache == nil {
		return
	}
	if policy.Cacheable {
		cacheKey := types.CacheKey(call.Tool, call.Args)
		if err := r.cache.Set(ctx, policy.Namespace, cacheKey, value, policy.TTL); err != nil {
			r.logger.Warn("cache write failed",
				zap.String("tool", call.Tool), zap.Error(err))
		}
	}
	for _, ns := range policy.Invalidates {
		if err := r.cache.InvalidateNamespace(ctx, ns); err != nil {
			r.logger.Warn("cache invalidation failed",
				zap.String("namespace", ns), zap.Error(err))
		}
	}
}

func (r *Router) startSpan(call types.ToolCall) *types.Span {
	span := types.NewSpan(types.SpanToolCall, call.AgentID, call.SessionID)
	span.Tool = call.Tool
	span.InputPreview = types.Preview(call.Args)
	return span
}

func (r *Router) record(span *types.Span) {
	if r.spans != nil {
		r.spans.Record(span)
	}
}

func (r *Router) observe(tool, outcome string, fromCache bool, d time.Duration) {
	if r.metrics != nil {
		r.metrics.ObserveInvoke(tool, outcome, fromCache, d)
	}
}
