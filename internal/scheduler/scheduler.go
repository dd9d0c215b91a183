// Package scheduler owns the dynamic runtime graph of in-flight and
// completed computations. It memoizes results by node key, runs rule
// bodies on a bounded pool of worker slots, rejects cyclic dependencies,
// and propagates filesystem invalidation through reverse dependency edges.
package scheduler

import (
	"context"
	"fmt"
	"reflect"
	"runtime"

	"golang.org/x/sync/semaphore"

	"github.com/vk/forgegrid/internal/ctxlog"
	"github.com/vk/forgegrid/internal/metrics"
	"github.com/vk/forgegrid/internal/nodekey"
	"github.com/vk/forgegrid/internal/rulegraph"
	"github.com/vk/forgegrid/internal/rules"
	"github.com/vk/forgegrid/internal/session"
	"github.com/vk/forgegrid/internal/vfs"
)

// Scheduler drives rule bodies to completion against the process-wide node
// table. One Scheduler serves any number of concurrent sessions.
type Scheduler struct {
	graph   *rulegraph.Graph
	fs      vfs.Reader
	metrics *metrics.Metrics

	table *nodeTable
	paths *pathIndex

	// slots bounds the number of rule bodies executing at once. Suspended
	// bodies release their slot, so in-flight logical computations may far
	// exceed the slot count.
	slots     *semaphore.Weighted
	slotCount int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the worker slot count. Defaults to the core count.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.slotCount = int64(n)
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a Scheduler over a frozen rule graph and a vfs boundary.
func New(graph *rulegraph.Graph, fs vfs.Reader, opts ...Option) *Scheduler {
	s := &Scheduler{
		graph:     graph,
		fs:        fs,
		table:     newNodeTable(),
		paths:     newPathIndex(),
		slotCount: int64(runtime.NumCPU()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.slots = semaphore.NewWeighted(s.slotCount)
	return s
}

// NodeCount returns the number of live nodes in the table.
func (s *Scheduler) NodeCount() int {
	return s.table.size()
}

// ProductRequest is the primary entry point: it computes the product of
// the given output type for a subject, blocking the calling goroutine
// until the result resolves. Results (including failures) are memoized;
// repeated requests for the same key never re-execute the rule body.
func (s *Scheduler) ProductRequest(ctx context.Context, sess *session.Session, output reflect.Type, subject any) (any, error) {
	sess.RecordRequest()
	return s.request(ctx, sess, output, subject, nil, nil)
}

// callPath is the immutable chain of node keys from a root request down to
// the current computation, threaded through Gets for cycle detection.
type callPath struct {
	key    nodekey.Key
	parent *callPath
}

func (p *callPath) with(key nodekey.Key) *callPath {
	return &callPath{key: key, parent: p}
}

func (p *callPath) contains(key nodekey.Key) bool {
	for c := p; c != nil; c = c.parent {
		if c.key == key {
			return true
		}
	}
	return false
}

// members returns the chain root-first.
func (p *callPath) members() []nodekey.Key {
	var rev []nodekey.Key
	for c := p; c != nil; c = c.parent {
		rev = append(rev, c.key)
	}
	out := make([]nodekey.Key, len(rev))
	for i, k := range rev {
		out[len(rev)-1-i] = k
	}
	return out
}

// request resolves one (output, subject) product. parent is the node whose
// body issued the request (nil for roots); ancestors is parent's call path.
func (s *Scheduler) request(ctx context.Context, sess *session.Session, output reflect.Type, subject any, ancestors *callPath, parent *Node) (any, error) {
	if subject == nil {
		subject = rules.Unit{}
	}
	subjectType := reflect.TypeOf(subject)
	if output == subjectType {
		return subject, nil // identity: the subject satisfies the request
	}

	rule, err := s.graph.RuleFor(output, subjectType)
	if err != nil {
		return nil, err
	}

	runID := ""
	if rule.Uncacheable {
		runID = sess.RunID()
	}
	key := nodekey.New(rule.Name, subject, runID)

	if parent != nil {
		parent.addDep(key)
	}
	if ancestors.contains(key) {
		return nil, &CycleError{Members: append(ancestors.members(), key)}
	}

	logger := ctxlog.FromContext(ctx)
	for {
		n, created := s.table.getOrCreate(key)
		if parent != nil {
			n.addDependent(parent.key)
		}

		if created {
			logger.Debug("Node created, dispatching rule body.", "node", key.String())
			go s.runNode(ctx, sess, n, rule, subject, subjectType, ancestors.with(key))
		} else if n.isDone() && !n.stale.Load() {
			sess.RecordMemoHit()
			s.metrics.IncMemoHits()
			return n.value, n.err
		}

		if !n.isDone() {
			// Blocking on an in-flight node can deadlock if that node
			// transitively awaits one of our ancestors; check the in-flight
			// edges before suspending.
			if cycle := s.detectInflightCycle(key, ancestors); cycle != nil {
				return nil, &CycleError{Members: cycle}
			}
			select {
			case <-n.done:
			case <-sess.Done():
				return nil, fmt.Errorf("session %s: %w", sess.RunID(), ErrCancelled)
			case <-ctx.Done():
				return nil, fmt.Errorf("request context: %w", ErrCancelled)
			}
		}

		if n.stale.Load() {
			// Invalidated (or discarded) while we waited; retry against a
			// fresh node unless our own run is over.
			if sess.Cancelled() {
				return nil, fmt.Errorf("session %s: %w", sess.RunID(), ErrCancelled)
			}
			logger.Debug("Node went stale while awaited, retrying.", "node", key.String())
			continue
		}
		return n.value, n.err
	}
}

// runNode executes a rule body for a freshly created node: resolves the
// rule's declared inputs, invokes the body, and completes the node. It
// holds a worker slot for the duration except across suspension points.
func (s *Scheduler) runNode(ctx context.Context, sess *session.Session, n *Node, rule *rules.Rule, subject any, subjectType reflect.Type, path *callPath) {
	if err := s.slots.Acquire(sess.Context(), 1); err != nil {
		s.discard(n, fmt.Errorf("acquiring worker slot: %w", ErrCancelled))
		return
	}

	s.metrics.ExecutionStarted()
	defer s.metrics.ExecutionFinished()
	sess.RecordExecution()
	s.metrics.IncExecutions()

	n.state.Store(int32(Running))

	task := &Task{
		scheduler: s,
		sess:      sess,
		node:      n,
		path:      path,
		ctx:       ctx,
		holding:   true,
	}
	defer func() {
		// A body that failed to reacquire its slot after suspension unwinds
		// without one; only release what is actually held.
		if task.holding {
			s.slots.Release(1)
		}
	}()

	value, err := func() (value any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("rule body panicked: %v", r)
			}
		}()

		inputs := make([]any, len(rule.Inputs))
		for i, in := range rule.Inputs {
			if in == subjectType {
				inputs[i] = subject
				continue
			}
			v, err := task.Get(in, subject)
			if err != nil {
				return nil, err
			}
			inputs[i] = v
		}
		return rule.Body(task, inputs)
	}()

	s.complete(ctx, n, value, err)
}

// complete transitions a node to its terminal state and wakes all waiters.
// It is the only mutation path for that transition. Results for nodes the
// table no longer holds (invalidated mid-flight) are discarded.
func (s *Scheduler) complete(ctx context.Context, n *Node, value any, err error) {
	logger := ctxlog.FromContext(ctx)

	if err != nil && isCancellation(err) {
		// Cancelled work is never cached; waiters from other sessions retry.
		s.discard(n, err)
		return
	}
	if !s.table.holds(n) {
		logger.Debug("Discarding result of invalidated node.", "node", n.key.String())
		s.discard(n, err)
		return
	}

	n.closeOnce.Do(func() {
		if err != nil {
			if _, ok := err.(*CycleError); !ok {
				if _, ok := err.(*RuleExecutionError); !ok {
					err = &RuleExecutionError{Key: n.key, Err: err}
				}
			}
			n.err = err
			n.state.Store(int32(Failed))
			s.metrics.IncFailures()
			logger.Debug("Node failed.", "node", n.key.String(), "error", err)
		} else {
			n.value = value
			n.state.Store(int32(Completed))
		}
		close(n.done)
	})
}

// discard marks a node stale, removes it from the table, and wakes waiters
// so they retry (or observe cancellation). The node instance is never
// reused.
func (s *Scheduler) discard(n *Node, err error) {
	n.stale.Store(true)
	s.table.evict(n)
	s.paths.remove(n.pathsSnapshot(), n.key)
	n.closeOnce.Do(func() {
		n.err = err
		close(n.done)
	})
}

// detectInflightCycle walks forward dependency edges of unfinished nodes
// starting at `from`, looking for any key on the requester's call path. It
// returns the cycle members when found.
func (s *Scheduler) detectInflightCycle(from nodekey.Key, ancestors *callPath) []nodekey.Key {
	onPath := make(map[nodekey.Key]struct{})
	for _, k := range ancestors.members() {
		onPath[k] = struct{}{}
	}
	if len(onPath) == 0 {
		return nil
	}

	visited := make(map[nodekey.Key]struct{})
	var trail []nodekey.Key

	var visit func(key nodekey.Key) bool
	visit = func(key nodekey.Key) bool {
		if _, ok := onPath[key]; ok {
			trail = append(trail, key)
			return true
		}
		if _, ok := visited[key]; ok {
			return false
		}
		visited[key] = struct{}{}

		n, ok := s.table.get(key)
		if !ok || n.isDone() {
			return false
		}
		for _, dep := range n.depsSnapshot() {
			if visit(dep) {
				trail = append(trail, key)
				return true
			}
		}
		return false
	}

	if !visit(from) {
		return nil
	}
	// trail is leaf-first; present it from the requester down.
	members := append(ancestors.members(), from)
	for i := len(trail) - 2; i >= 0; i-- {
		members = append(members, trail[i])
	}
	return members
}
