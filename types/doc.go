// Package types provides the shared type definitions for the AgentHub
// orchestration hub.
//
// types is the lowest-level public package and depends on no other hub
// package. Everything that crosses package boundaries lives here to avoid
// import cycles:
//
//   - ToolCall / Result / DegradedAck: the tool invocation contract
//   - Span / SpanKind / Outcome: trace records
//   - Error / ErrorCode: the structured error taxonomy
//   - context propagation helpers (request ID, agent ID, session ID)
package types
