// Package metrics exposes the hub's Prometheus instrumentation: invoke
// outcomes and latency, degraded-mode state, queue depth, cache
// effectiveness, and the HTTP surface.
package metrics
