// Package trace records hub spans to an append-only JSONL stream.
//
// Recording is fire and forget: callers hand a sealed span to Record and
// never block on I/O. Spans flow through a bounded channel to a single
// writer goroutine; when the channel is full the span is counted as dropped
// rather than stalling the request path. Drain flushes everything buffered
// before shutdown so short-lived processes do not lose their tail.
package trace
