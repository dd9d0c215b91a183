package rules

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Module is the interface rule packs implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds all registered rules and root queries for a single
// application instance. It is mutated only during startup registration;
// afterwards the rule graph builder freezes its contents.
type Registry struct {
	byName   map[string]*Rule
	byOutput map[reflect.Type][]*Rule
	queries  []Query
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		byName:   make(map[string]*Rule),
		byOutput: make(map[reflect.Type][]*Rule),
	}
}

// Register adds a rule. Duplicate names and structural problems are
// reported by Validate, not here, so modules can register unconditionally.
func (r *Registry) Register(rule *Rule) {
	if existing, ok := r.byName[rule.Name]; ok {
		// Keep both for Validate to report; the output index carries the
		// duplicate so ambiguity detection still sees it.
		_ = existing
	} else {
		r.byName[rule.Name] = rule
	}
	r.byOutput[rule.Output] = append(r.byOutput[rule.Output], rule)
}

// RegisterQuery declares a root request shape.
func (r *Registry) RegisterQuery(q Query) {
	r.queries = append(r.queries, q)
}

// Rules returns all registered rules in deterministic (name) order.
func (r *Registry) Rules() []*Rule {
	out := make([]*Rule, 0, len(r.byName))
	for _, rule := range r.byName {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RulesFor returns every rule producing the given output type.
func (r *Registry) RulesFor(output reflect.Type) []*Rule {
	return r.byOutput[output]
}

// RuleByName looks up a single rule.
func (r *Registry) RuleByName(name string) (*Rule, bool) {
	rule, ok := r.byName[name]
	return rule, ok
}

// Queries returns the declared root queries.
func (r *Registry) Queries() []Query {
	return r.queries
}

// Validate performs a structural integrity check over everything modules
// registered. All problems are aggregated into a single error so a
// misconfigured plugin set is reported in one pass.
func (r *Registry) Validate() error {
	var errs []string

	seen := make(map[string]int)
	for _, rulesForOutput := range r.byOutput {
		for _, rule := range rulesForOutput {
			seen[rule.Name]++
		}
	}
	for name, count := range seen {
		if count > 1 {
			errs = append(errs, fmt.Sprintf("rule name '%s' registered %d times", name, count))
		}
	}

	for _, rule := range r.Rules() {
		if rule.Name == "" {
			errs = append(errs, fmt.Sprintf("rule %s: empty name", rule))
		}
		if rule.Output == nil {
			errs = append(errs, fmt.Sprintf("rule '%s': nil output type", rule.Name))
		}
		if rule.Body == nil {
			errs = append(errs, fmt.Sprintf("rule '%s': nil body", rule.Name))
		}
		for i, in := range rule.Inputs {
			if in == nil {
				errs = append(errs, fmt.Sprintf("rule '%s': nil input type at position %d", rule.Name, i))
			}
		}
		for i, g := range rule.Gets {
			if g.Output == nil || g.Subject == nil {
				errs = append(errs, fmt.Sprintf("rule '%s': incomplete Get declaration at position %d", rule.Name, i))
			}
		}
	}

	for _, q := range r.queries {
		if q.Output == nil || q.Subject == nil {
			errs = append(errs, fmt.Sprintf("query %s: output and subject types are required", q))
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
