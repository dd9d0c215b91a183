package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/forgegrid/internal/nodekey"
)

// ErrCancelled marks results of requests that were cancelled rather than
// failed. Callers distinguish it from genuine failures with errors.Is.
var ErrCancelled = errors.New("cancelled")

// RuleExecutionError wraps an error raised by a rule body with the node it
// belongs to. It is cached as the node's result and replayed verbatim to
// every requester until the node is invalidated.
type RuleExecutionError struct {
	Key nodekey.Key
	Err error
}

func (e *RuleExecutionError) Error() string {
	return fmt.Sprintf("rule %s failed: %v", e.Key, e.Err)
}

func (e *RuleExecutionError) Unwrap() error {
	return e.Err
}

// CycleError reports a cyclic dependency among in-flight computations. The
// offending node fails with this error; the engine itself keeps running.
type CycleError struct {
	Members []nodekey.Key
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Members))
	for i, k := range e.Members {
		parts[i] = k.String()
	}
	return "dependency cycle: " + strings.Join(parts, " -> ")
}

// isCancellation reports whether an error represents cancellation rather
// than failure; such results are never cached.
func isCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
