package rulegraph

import (
	"fmt"
	"reflect"
	"strings"
)

// NoApplicableRuleError reports a product type that nothing can produce in
// the subject context where it was needed.
type NoApplicableRuleError struct {
	// Requester is the rule (or root query) that needed the product.
	Requester string
	Output    reflect.Type
	Subject   reflect.Type
}

func (e *NoApplicableRuleError) Error() string {
	return fmt.Sprintf("no rule produces %s (for subject %s), required by %s",
		e.Output, e.Subject, e.Requester)
}

// AmbiguousRuleError reports multiple rules producing the same output type
// in the same subject context. The engine refuses to guess: silent
// tie-breaking would hide plugin conflicts.
type AmbiguousRuleError struct {
	Output  reflect.Type
	Subject reflect.Type
	Rules   []string
}

func (e *AmbiguousRuleError) Error() string {
	return fmt.Sprintf("ambiguous rules for %s (for subject %s): %s",
		e.Output, e.Subject, strings.Join(e.Rules, ", "))
}

// UnvalidatedEdgeError reports a runtime request for an edge the frozen
// graph never validated, which means the requesting rule issued a Get it
// did not declare or a caller requested an undeclared root query.
type UnvalidatedEdgeError struct {
	Output  reflect.Type
	Subject reflect.Type
}

func (e *UnvalidatedEdgeError) Error() string {
	return fmt.Sprintf("no validated rule graph edge for %s (for subject %s); declare the query or Get",
		e.Output, e.Subject)
}
