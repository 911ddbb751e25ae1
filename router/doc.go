// Package router ties the hub together: it resolves tool calls against a
// static registry, serves cacheable reads from the result cache, executes
// live calls with per-tool timeouts, diverts mutating calls to the durable
// queue while the hub is Degraded, and records exactly one span per
// invocation.
//
// The registry is built once at startup. Routing never consults anything
// mutable except the health monitor's mode, so the hot path stays
// lock-cheap under concurrent agents.
package router
