package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Kind distinguishes read-only tools from mutating ones.
type Kind string

const (
	KindRead     Kind = "read"
	KindMutating Kind = "mutating"
)

// Handler executes a tool against its backing capability.
type Handler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Policy is the routing contract for one tool, fixed at registration.
type Policy struct {
	// Kind controls caching and queue eligibility. Mutating tools are never
	// served from cache.
	Kind Kind
	// Cacheable reads are stored in the result cache under Namespace.
	Cacheable bool
	// TTL bounds staleness of cached results. Zero falls back to the cache
	// default.
	TTL time.Duration
	// Namespace groups cache entries for invalidation.
	Namespace string
	// Invalidates lists cache namespaces wiped after a successful mutation.
	Invalidates []string
	// Queueable mutating tools are accepted while Degraded and replayed
	// later. Non-queueable ones fail fast in both modes.
	Queueable bool
	// Timeout bounds one live execution.
	Timeout time.Duration
	// Group is the capability group whose health gates this tool.
	Group string
}

// Validate rejects contradictory policies at registration time.
func (p Policy) Validate() error {
	switch p.Kind {
	case KindRead, KindMutating:
	default:
		return fmt.Errorf("unknown kind %q", p.Kind)
	}
	if p.Kind == KindMutating && p.Cacheable {
		return fmt.Errorf("mutating tools must not be cacheable")
	}
	if p.Kind == KindRead && p.Queueable {
		return fmt.Errorf("read tools must not be queueable")
	}
	if p.Cacheable && p.Namespace == "" {
		return fmt.Errorf("cacheable tools need a namespace")
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if p.Group == "" {
		return fmt.Errorf("capability group is required")
	}
	return nil
}

type capability struct {
	handler Handler
	policy  Policy
}

// Registry is the static tool table. Built at startup, read-only afterwards,
// so lookups need no lock.
type Registry struct {
	tools map[string]capability
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]capability)}
}

// Register adds a tool. Registering a duplicate name or an invalid policy
// fails; the registry is meant to be assembled once and fully checked before
// the hub serves traffic.
func (r *Registry) Register(name string, handler Handler, policy Policy) error {
	if name == "" {
		return fmt.Errorf("router: tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("router: tool %q has no handler", name)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("router: tool %q already registered", name)
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("router: tool %q: %w", name, err)
	}
	r.tools[name] = capability{handler: handler, policy: policy}
	return nil
}

// Lookup resolves a tool name.
func (r *Registry) Lookup(name string) (Handler, Policy, bool) {
	c, ok := r.tools[name]
	return c.handler, c.policy, ok
}

// Tools returns all registered tool names, sorted.
func (r *Registry) Tools() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
