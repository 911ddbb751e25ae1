package handoff

import (
	"fmt"
	"sort"
)

// Graph is a static directed delegation graph. Edges are declared once; the
// zero value allows nothing.
type Graph struct {
	edges map[string]map[string]struct{}
}

// NewGraph builds a graph from an adjacency list. Every agent that appears
// only as a target is still a known node.
func NewGraph(adjacency map[string][]string) *Graph {
	g := &Graph{edges: make(map[string]map[string]struct{}, len(adjacency))}
	for from, targets := range adjacency {
		set := make(map[string]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		g.edges[from] = set
	}
	return g
}

// DefaultGraph returns the commerce delegation graph: triage fans out to the
// specialist agents, and each specialist may escalate along one declared
// path.
func DefaultGraph() *Graph {
	return NewGraph(map[string][]string{
		"triage":    {"sales", "finance", "insight", "analytics"},
		"sales":     {"finance"},
		"insight":   {"business_decision"},
		"inventory": {"buying"},
		"analytics": {"marketing"},
	})
}

// Allowed reports whether from may hand off to to.
func (g *Graph) Allowed(from, to string) bool {
	targets, ok := g.edges[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// Targets returns the declared handoff targets of an agent, sorted.
func (g *Graph) Targets(from string) []string {
	set, ok := g.edges[from]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for to := range set {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// Sources returns every agent with at least one outgoing edge, sorted.
func (g *Graph) Sources() []string {
	out := make([]string, 0, len(g.edges))
	for from := range g.edges {
		out = append(out, from)
	}
	sort.Strings(out)
	return out
}

// Adjacency returns a copy of the graph as an adjacency list with sorted
// target slices. Used by the status endpoint.
func (g *Graph) Adjacency() map[string][]string {
	out := make(map[string][]string, len(g.edges))
	for from := range g.edges {
		out[from] = g.Targets(from)
	}
	return out
}

// Validate rejects graphs with self-edges.
func (g *Graph) Validate() error {
	for from, targets := range g.edges {
		if _, ok := targets[from]; ok {
			return fmt.Errorf("handoff: agent %q declares a self-edge", from)
		}
	}
	return nil
}
