// Package agenthub assembles the orchestration hub: the result cache, the
// health monitor, the durable queue and its replayer, the trace recorder,
// the handoff coordinator, session memory, and the router that ties them
// together.
package agenthub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/stackmesh/agenthub/cache"
	"github.com/stackmesh/agenthub/config"
	"github.com/stackmesh/agenthub/handoff"
	"github.com/stackmesh/agenthub/health"
	"github.com/stackmesh/agenthub/internal/metrics"
	"github.com/stackmesh/agenthub/memory"
	"github.com/stackmesh/agenthub/queue"
	"github.com/stackmesh/agenthub/router"
	"github.com/stackmesh/agenthub/trace"
	"github.com/stackmesh/agenthub/types"
)

// Option customizes hub assembly.
type Option func(*options)

type options struct {
	graph     *handoff.Graph
	collector *metrics.Collector
	probers   []proberEntry
	register  func(*router.Registry) error
}

type proberEntry struct {
	prober   health.Prober
	critical bool
}

// WithGraph replaces the default delegation graph.
func WithGraph(g *handoff.Graph) Option {
	return func(o *options) { o.graph = g }
}

// WithMetrics attaches a Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithProber registers a capability group prober.
func WithProber(p health.Prober, critical bool) Option {
	return func(o *options) {
		o.probers = append(o.probers, proberEntry{prober: p, critical: critical})
	}
}

// WithTools supplies the registry population step. Required: a hub without
// tools routes nothing.
func WithTools(register func(*router.Registry) error) Option {
	return func(o *options) { o.register = register }
}

// Hub is the assembled orchestration hub.
type Hub struct {
	cfg    *config.Config
	logger *zap.Logger

	cache    cache.Store
	monitor  *health.Monitor
	queue    *queue.Store
	replayer *queue.Replayer
	recorder *trace.Recorder
	handoff  *handoff.Coordinator
	memory   *memory.Store
	router   *router.Router
	metrics  *metrics.Collector

	gaugeStop chan struct{}
	gaugeDone chan struct{}
}

// New assembles a hub from configuration. The returned hub is idle until
// Start.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Hub, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &options{graph: handoff.DefaultGraph()}
	for _, opt := range opts {
		opt(o)
	}
	if o.register == nil {
		return nil, errors.New("agenthub: WithTools is required")
	}
	if err := o.graph.Validate(); err != nil {
		return nil, err
	}

	store, err := cache.New(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	q, err := queue.Open(cfg.Queue, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	mem, err := memory.Open(cfg.Memory, logger)
	if err != nil {
		_ = store.Close()
		_ = q.Close()
		return nil, err
	}
	recorder, err := trace.NewRecorder(cfg.Trace, logger)
	if err != nil {
		_ = store.Close()
		_ = q.Close()
		_ = mem.Close()
		return nil, err
	}

	monitor := health.NewMonitor(cfg.Health, logger)
	for _, e := range o.probers {
		monitor.Register(e.prober, e.critical)
	}

	registry := router.NewRegistry()
	if err := o.register(registry); err != nil {
		_ = store.Close()
		_ = q.Close()
		_ = mem.Close()
		return nil, err
	}

	// A typed nil must not reach the interface field.
	var routerMetrics router.Metrics
	if o.collector != nil {
		routerMetrics = o.collector
	}
	rt := router.New(registry, store, monitor, q, recorder, routerMetrics, logger)

	h := &Hub{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "hub")),
		cache:     store,
		monitor:   monitor,
		queue:     q,
		recorder:  recorder,
		handoff:   handoff.NewCoordinator(o.graph, recorder, logger),
		memory:    mem,
		router:    rt,
		metrics:   o.collector,
		gaugeStop: make(chan struct{}),
		gaugeDone: make(chan struct{}),
	}
	h.replayer = queue.NewReplayer(q, monitor, rt.Replay, recorder, cfg.Replay.Workers, logger)
	return h, nil
}

// Start launches the monitor's probe loop, the replayer, and the metrics
// refresh loop. The monitor probes once immediately, so a hub that comes up
// against dead capabilities enters Degraded before serving traffic.
func (h *Hub) Start(ctx context.Context) {
	h.monitor.Start(ctx)
	h.replayer.Start(ctx)
	go h.refreshGauges(ctx)
	h.logger.Info("hub started",
		zap.Strings("tools", h.router.Registry().Tools()),
		zap.String("mode", h.monitor.Mode().String()))
}

// Shutdown stops background work and flushes the trace recorder. The context
// bounds the flush.
func (h *Hub) Shutdown(ctx context.Context) error {
	close(h.gaugeStop)
	<-h.gaugeDone
	h.replayer.Stop()
	h.monitor.Stop()

	var errs []error
	if err := h.recorder.Drain(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := h.queue.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := h.memory.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := h.cache.Close(); err != nil {
		errs = append(errs, err)
	}
	h.logger.Info("hub stopped")
	return errors.Join(errs...)
}

// Invoke routes one tool call.
func (h *Hub) Invoke(ctx context.Context, call types.ToolCall) (*router.Response, error) {
	return h.router.Invoke(ctx, call)
}

// Handoff validates one delegation attempt.
func (h *Hub) Handoff(ctx context.Context, from, to, sessionID string) (*handoff.Result, error) {
	return h.handoff.Attempt(ctx, from, to, sessionID, nil)
}

// Memory exposes the session memory store.
func (h *Hub) Memory() *memory.Store { return h.memory }

// Monitor exposes the health monitor.
func (h *Hub) Monitor() *health.Monitor { return h.monitor }

// Status is the hub's operational snapshot, served by /api/v1/status.
type Status struct {
	Mode        string              `json:"mode"`
	Groups      []health.GroupState `json:"groups"`
	Pending     int64               `json:"queue_pending"`
	DeadLetters int                 `json:"queue_dead_letters"`
	Cache       cache.Stats         `json:"cache"`
	Spans       SpanStats           `json:"spans"`
	Tools       []string            `json:"tools"`
	Handoffs    map[string][]string `json:"handoffs"`
	Sessions    int                 `json:"sessions"`
}

// SpanStats summarizes the trace recorder.
type SpanStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
}

// Status collects the operational snapshot.
func (h *Hub) Status(ctx context.Context) (*Status, error) {
	pending, err := h.queue.Len(ctx)
	if err != nil {
		return nil, err
	}
	dead, err := h.queue.DeadLetters(ctx, 0)
	if err != nil {
		return nil, err
	}
	return &Status{
		Mode:        h.monitor.Mode().String(),
		Groups:      h.monitor.GroupStates(),
		Pending:     pending,
		DeadLetters: len(dead),
		Cache:       h.cache.Stats(),
		Spans: SpanStats{
			Written: h.recorder.Written(),
			Dropped: h.recorder.Dropped(),
		},
		Tools:    h.router.Registry().Tools(),
		Handoffs: h.handoff.Graph().Adjacency(),
		Sessions: h.memory.Sessions(),
	}, nil
}

// refreshGauges keeps the slow-moving Prometheus gauges in step with the
// stores they mirror.
func (h *Hub) refreshGauges(ctx context.Context) {
	defer close(h.gaugeDone)
	if h.metrics == nil {
		<-h.gaugeStop
		return
	}

	modes := h.monitor.Subscribe()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.gaugeStop:
			return
		case mode := <-modes:
			h.metrics.SetDegraded(mode == health.Degraded)
		case <-ticker.C:
			if n, err := h.queue.Len(ctx); err == nil {
				h.metrics.SetQueueDepth(n)
			}
			h.metrics.UpdateCacheStats(h.cache.Stats())
			h.metrics.SetSpansDropped(h.recorder.Dropped())
		}
	}
}
