// Package session provides the per-invocation scope for engine requests:
// a run id, cooperative cancellation, and per-run counters. A session is a
// filtered view over the process-wide node table, never its owner; shared
// memoized nodes outlive every session that touched them.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session represents a single engine run. Create one per command
// invocation and discard it when the run completes.
type Session struct {
	id        string
	createdAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc

	requests   atomic.Uint64
	executions atomic.Uint64
	memoHits   atomic.Uint64
}

// New creates a session derived from the given context. Cancelling the
// parent context cancels the session.
func New(ctx context.Context) *Session {
	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:        uuid.NewString(),
		createdAt: time.Now(),
		ctx:       sctx,
		cancel:    cancel,
	}
}

// RunID returns the unique id of this run. Uncacheable node keys embed it.
func (s *Session) RunID() string {
	return s.id
}

// Context returns the session's context; it is done once the session is
// cancelled.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Done exposes the cancellation channel checked at every suspension point.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Cancel cancels the session. In-flight root requests unwind promptly with
// a Cancelled result; already-completed shared nodes are unaffected.
func (s *Session) Cancel() {
	s.cancel()
}

// Cancelled reports whether the session has been cancelled.
func (s *Session) Cancelled() bool {
	return s.ctx.Err() != nil
}

// RecordRequest counts one root product request.
func (s *Session) RecordRequest() { s.requests.Add(1) }

// RecordExecution counts one rule body actually executed for this session.
func (s *Session) RecordExecution() { s.executions.Add(1) }

// RecordMemoHit counts one request satisfied from an already-completed node.
func (s *Session) RecordMemoHit() { s.memoHits.Add(1) }

// Stats is a point-in-time snapshot of session counters.
type Stats struct {
	Requests   uint64
	Executions uint64
	MemoHits   uint64
}

// Stats returns a snapshot of this session's counters.
func (s *Session) Stats() Stats {
	return Stats{
		Requests:   s.requests.Load(),
		Executions: s.executions.Load(),
		MemoHits:   s.memoHits.Load(),
	}
}
