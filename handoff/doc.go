// Package handoff validates agent-to-agent delegation against a static
// directed graph and records every attempt as a span.
//
// The graph is fixed at construction. An edge that is not declared is an
// invalid handoff; the hub rejects it rather than letting agents invent
// delegation paths at runtime.
package handoff
