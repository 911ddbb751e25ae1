package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/stackmesh/agenthub/cache"
)

// Collector owns every hub metric. It satisfies the router's Metrics
// interface, so one instance is threaded through the whole invoke path.
type Collector struct {
	invokeTotal    *prometheus.CounterVec
	invokeDuration *prometheus.HistogramVec
	cacheServed    *prometheus.CounterVec

	mode       prometheus.Gauge
	queueDepth prometheus.Gauge
	deadTotal  prometheus.Counter

	cacheHits          prometheus.Gauge
	cacheMisses        prometheus.Gauge
	cacheEvictions     prometheus.Gauge
	cacheInvalidations prometheus.Gauge
	cacheSize          prometheus.Gauge

	spansDropped prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers all hub metrics under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.invokeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoke_total",
			Help:      "Tool invocations by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)
	c.invokeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoke_duration_seconds",
			Help:      "Tool invocation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)
	c.cacheServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoke_cache_served_total",
			Help:      "Invocations answered from the result cache",
		},
		[]string{"tool"},
	)

	c.mode = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "degraded",
		Help:      "1 while the hub is in degraded mode, 0 otherwise",
	})
	c.queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Pending messages in the durable queue",
	})
	c.deadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_dead_letters_total",
		Help:      "Messages moved to the dead-letter table",
	})

	c.cacheHits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "cache_hits", Help: "Cumulative cache hits"})
	c.cacheMisses = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "cache_misses", Help: "Cumulative cache misses"})
	c.cacheEvictions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "cache_evictions", Help: "Cumulative cache evictions"})
	c.cacheInvalidations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "cache_invalidations", Help: "Cumulative namespace invalidations"})
	c.cacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "cache_size", Help: "Live cache entries"})

	c.spansDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trace_spans_dropped",
		Help:      "Spans dropped by the trace recorder under backpressure",
	})

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	return c
}

// ObserveInvoke records one settled invocation.
func (c *Collector) ObserveInvoke(tool, outcome string, fromCache bool, duration time.Duration) {
	c.invokeTotal.WithLabelValues(tool, outcome).Inc()
	c.invokeDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if fromCache {
		c.cacheServed.WithLabelValues(tool).Inc()
	}
}

// QueueDepthDelta adjusts the queue depth gauge as calls are queued.
func (c *Collector) QueueDepthDelta(delta int) {
	c.queueDepth.Add(float64(delta))
}

// SetQueueDepth resets the gauge from an authoritative count.
func (c *Collector) SetQueueDepth(n int64) {
	c.queueDepth.Set(float64(n))
}

// DeadLettered counts a message moved to the dead-letter table.
func (c *Collector) DeadLettered() {
	c.deadTotal.Inc()
}

// SetDegraded reflects the global mode.
func (c *Collector) SetDegraded(degraded bool) {
	if degraded {
		c.mode.Set(1)
	} else {
		c.mode.Set(0)
	}
}

// UpdateCacheStats publishes a cache stats snapshot.
func (c *Collector) UpdateCacheStats(s cache.Stats) {
	c.cacheHits.Set(float64(s.Hits))
	c.cacheMisses.Set(float64(s.Misses))
	c.cacheEvictions.Set(float64(s.Evictions))
	c.cacheInvalidations.Set(float64(s.Invalidations))
	c.cacheSize.Set(float64(s.Size))
}

// SetSpansDropped publishes the recorder's overflow counter.
func (c *Collector) SetSpansDropped(n uint64) {
	c.spansDropped.Set(float64(n))
}

// ObserveHTTP records one HTTP request.
func (c *Collector) ObserveHTTP(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
