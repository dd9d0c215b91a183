package rulegraph

import (
	"context"
	"errors"
	"reflect"

	"github.com/vk/forgegrid/internal/ctxlog"
	"github.com/vk/forgegrid/internal/rules"
)

// Build constructs the frozen rule graph from a validated registry.
//
// The walk starts at each declared root query and resolves every (output
// type, subject type) edge any reachable rule needs: declared inputs first,
// then declared dynamic Gets (which open a new subject context). All
// resolution failures are collected and returned together so one pass
// reports every conflict in a misconfigured rule set.
func Build(ctx context.Context, reg *rules.Registry) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Rule graph construction starting.", "rules", len(reg.Rules()), "queries", len(reg.Queries()))

	if err := reg.Validate(); err != nil {
		return nil, err
	}

	b := &builder{
		reg:   reg,
		edges: make(map[edgeKey]*rules.Rule),
		seen:  make(map[edgeKey]bool),
	}
	for _, q := range reg.Queries() {
		b.need(q.Output, q.Subject, q.String())
	}

	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	logger.Debug("Rule graph construction successful.", "edges", len(b.edges))
	return &Graph{edges: b.edges, queries: reg.Queries()}, nil
}

type builder struct {
	reg   *rules.Registry
	edges map[edgeKey]*rules.Rule
	seen  map[edgeKey]bool
	errs  []error
}

// need resolves the edge (output, subject) and recursively everything the
// chosen rule requires. Type-level recursion (a rule whose inputs lead back
// to its own output) is legal here; runtime cycle detection catches actual
// cyclic computations on concrete subjects.
func (b *builder) need(output, subject reflect.Type, requester string) {
	if output == subject {
		return // identity: the subject itself satisfies the request
	}
	key := edgeKey{output, subject}
	if b.seen[key] {
		return
	}
	b.seen[key] = true

	candidates := b.reg.RulesFor(output)
	switch len(candidates) {
	case 0:
		b.errs = append(b.errs, &NoApplicableRuleError{Requester: requester, Output: output, Subject: subject})
		return
	case 1:
		// resolved below
	default:
		names := make([]string, len(candidates))
		for i, r := range candidates {
			names[i] = r.Name
		}
		b.errs = append(b.errs, &AmbiguousRuleError{Output: output, Subject: subject, Rules: names})
		return
	}

	rule := candidates[0]
	b.edges[key] = rule

	for _, in := range rule.Inputs {
		b.need(in, subject, rule.Name)
	}
	for _, g := range rule.Gets {
		b.need(g.Output, g.Subject, rule.Name)
	}
}
