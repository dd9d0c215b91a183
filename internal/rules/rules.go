// Package rules defines rule registration: the typed, pure functions the
// engine composes into a dependency graph. A rule declares the product type
// it outputs, the product types it consumes, and a body. Rule packs plug in
// through the Module interface, mirroring how handler modules register
// themselves with the application registry.
package rules

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vk/forgegrid/internal/vfs"
)

// TaskContext is the capability surface a rule body executes against. It is
// implemented by the scheduler; rule packages depend only on this interface.
//
// Get and GetAll are the body's suspension points: the calling goroutine
// yields its worker slot while the requested products compute. ReadFile,
// Stat and ReadDir are the only sanctioned filesystem operations; each
// records the touched path as an input of the current node so file changes
// invalidate it.
type TaskContext interface {
	// Context returns the context of the current execution, carrying the
	// session logger and cancellation.
	Context() context.Context

	// Get requests one product of the given output type for a subject and
	// blocks until it resolves. A failed dependency fails this body with the
	// dependency's error.
	Get(output reflect.Type, subject any) (any, error)

	// GetAll requests several products concurrently and resumes once all
	// have resolved. Results are positional. The first failure wins.
	GetAll(reqs []Request) ([]any, error)

	// ReadFile reads file bytes plus digest through the engine's vfs
	// boundary, recording the path as an input of the current node.
	ReadFile(path string) (vfs.FileContent, error)

	// Stat returns file metadata, recording the path.
	Stat(path string) (vfs.FileStat, error)

	// ReadDir lists a directory, recording the path.
	ReadDir(path string) (vfs.Listing, error)
}

// Request is one element of a batched GetAll.
type Request struct {
	Output  reflect.Type
	Subject any
}

// BodyFunc is a rule body. Inputs arrive in the order the rule declared
// them, already resolved by the engine.
type BodyFunc func(tc TaskContext, inputs []any) (any, error)

// GetSpec declares a dynamic request a rule body may issue at runtime, so
// the rule graph can validate the edge before any execution starts.
type GetSpec struct {
	Output  reflect.Type
	Subject reflect.Type
}

// Rule is one registered computation step.
type Rule struct {
	// Name uniquely identifies the rule; it appears in node keys, logs and
	// error messages.
	Name string

	// Output is the product type this rule produces.
	Output reflect.Type

	// Inputs are the product types the engine resolves and passes to Body.
	// An input equal to the request's subject type binds to the subject
	// itself; anything else must be producible by another rule.
	Inputs []reflect.Type

	// Gets declares the dynamic requests Body may issue via TaskContext.Get.
	Gets []GetSpec

	// Uncacheable scopes this rule's nodes to a single session: recomputed
	// per session, still deduplicated within one.
	Uncacheable bool

	Body BodyFunc
}

func (r *Rule) String() string {
	if r == nil {
		return "<nil rule>"
	}
	return fmt.Sprintf("%s(%s -> %s)", r.Name, typeNames(r.Inputs), typeName(r.Output))
}

// Query declares a root request shape callers will issue: the engine
// validates reachability for every query at graph construction time.
type Query struct {
	Output  reflect.Type
	Subject reflect.Type
}

func (q Query) String() string {
	return fmt.Sprintf("Query(%s for %s)", typeName(q.Output), typeName(q.Subject))
}

// Unit is the subject for requests that need no parameters.
type Unit struct{}

// CacheKey implements subject keying for Unit.
func (Unit) CacheKey() string { return "unit" }

// TypeOf returns the reflect.Type of T without needing a value.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Get is a typed convenience wrapper over TaskContext.Get.
func Get[T any](tc TaskContext, subject any) (T, error) {
	var zero T
	v, err := tc.Get(TypeOf[T](), subject)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("product has type %T, expected %s", v, TypeOf[T]())
	}
	return out, nil
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

func typeNames(ts []reflect.Type) string {
	s := ""
	for i, t := range ts {
		if i > 0 {
			s += ", "
		}
		s += typeName(t)
	}
	return s
}
