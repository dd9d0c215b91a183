// Package rulegraph builds and freezes the static rule graph: for every
// (output type, subject type) combination reachable from the declared root
// queries, exactly one registered rule. Construction is all-or-nothing;
// ambiguity and missing producers are hard errors reported before any
// execution starts.
package rulegraph

import (
	"reflect"

	"github.com/vk/forgegrid/internal/rules"
)

// edgeKey addresses one resolved edge of the frozen graph.
type edgeKey struct {
	output  reflect.Type
	subject reflect.Type
}

// Graph is the frozen artifact. It is immutable after Build returns and is
// safe for concurrent use without locking.
type Graph struct {
	edges   map[edgeKey]*rules.Rule
	queries []rules.Query
}

// RuleFor resolves the unique rule producing output for the given subject
// type. Identity requests (output == subject type) resolve to no rule and
// are handled by the caller; everything else must be a validated edge.
func (g *Graph) RuleFor(output, subject reflect.Type) (*rules.Rule, error) {
	if rule, ok := g.edges[edgeKey{output, subject}]; ok {
		return rule, nil
	}
	return nil, &UnvalidatedEdgeError{Output: output, Subject: subject}
}

// HasEdge reports whether the frozen graph validated the given edge.
func (g *Graph) HasEdge(output, subject reflect.Type) bool {
	_, ok := g.edges[edgeKey{output, subject}]
	return ok
}

// Queries returns the root queries the graph was built for.
func (g *Graph) Queries() []rules.Query {
	return g.queries
}

// Len returns the number of validated edges, for logging and tests.
func (g *Graph) Len() int {
	return len(g.edges)
}
