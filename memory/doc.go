// Package memory holds per-agent conversational state scoped to a session.
//
// Session entries live in process memory with last-writer-wins semantics and
// are isolated by (agent, session): one session can never observe another's
// keys. Forget wipes a session in one call.
//
// Separately, agents can promote durable facts (supplier pricing, reorder
// thresholds) to persistent records stored through GORM. Persistent records
// are keyed by agent only, survive Forget, and survive process restarts.
package memory
