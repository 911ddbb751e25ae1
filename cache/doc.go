// Package cache provides the TTL-scoped result cache for idempotent tool
// calls.
//
// Two backends implement the same Store interface: an in-process store for
// single-node deployments and a Redis-backed store for sharing results
// across hub replicas. Entries are grouped into capability namespaces so a
// mutating call can invalidate every cached read of the capability it
// touched. Expired entries are treated as absent, never as stale-but-usable.
package cache
