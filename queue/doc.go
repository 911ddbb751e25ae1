// Package queue provides the durable buffer for mutating tool calls
// accepted while the hub is Degraded, and the replayer that drains it once
// health is restored.
//
// Messages are persisted through GORM (pure-Go SQLite by default, Postgres
// for multi-node deployments) so a crash while Degraded loses nothing.
// Sequence numbers come from the database's autoincrement primary key, so
// ordering needs no coordination of its own. Replay is strictly in sequence
// order;
// messages sharing a session are never executed concurrently, while
// independent sessions replay in parallel under a bounded worker pool. A
// message that keeps failing moves to a dead-letter record after the
// configured attempt budget; it is never silently dropped.
package queue
