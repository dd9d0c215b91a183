package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/vk/forgegrid/internal/nodekey"
)

// State is the lifecycle position of a node.
type State int32

const (
	NotStarted State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Node is the runtime record of one rule invocation against concrete
// inputs. Nodes are owned exclusively by the scheduler: all state
// transitions go through its operations, and an invalidated node is removed
// and replaced by a fresh instance on the next request, never reset in
// place.
type Node struct {
	key nodekey.Key
	gen uint64

	state atomic.Int32
	// stale is set when the node was invalidated (or its result discarded);
	// waiters that observe it retry against a fresh node.
	stale atomic.Bool

	// done is closed exactly once when the node reaches a terminal state.
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	deps       map[nodekey.Key]struct{}
	dependents map[nodekey.Key]struct{}
	paths      map[string]struct{}

	// value and err are written once before done closes, then immutable.
	value any
	err   error
}

func newNode(key nodekey.Key, gen uint64) *Node {
	return &Node{
		key:        key,
		gen:        gen,
		done:       make(chan struct{}),
		deps:       make(map[nodekey.Key]struct{}),
		dependents: make(map[nodekey.Key]struct{}),
		paths:      make(map[string]struct{}),
	}
}

// Key returns the node's identity.
func (n *Node) Key() nodekey.Key {
	return n.key
}

// Generation returns the key generation this node was created at.
func (n *Node) Generation() uint64 {
	return n.gen
}

// State returns the node's current lifecycle state.
func (n *Node) State() State {
	return State(n.state.Load())
}

func (n *Node) isDone() bool {
	select {
	case <-n.done:
		return true
	default:
		return false
	}
}

// addDep records a forward dependency edge. The dependency set only grows
// while the node runs; it is frozen by completion.
func (n *Node) addDep(dep nodekey.Key) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deps[dep] = struct{}{}
}

// addDependent records a reverse edge used for invalidation propagation.
func (n *Node) addDependent(dependent nodekey.Key) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dependents[dependent] = struct{}{}
}

// addPath records a filesystem path this node's computation read.
func (n *Node) addPath(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths[path] = struct{}{}
}

func (n *Node) depsSnapshot() []nodekey.Key {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]nodekey.Key, 0, len(n.deps))
	for k := range n.deps {
		out = append(out, k)
	}
	return out
}

func (n *Node) dependentsSnapshot() []nodekey.Key {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]nodekey.Key, 0, len(n.dependents))
	for k := range n.dependents {
		out = append(out, k)
	}
	return out
}

func (n *Node) pathsSnapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.paths))
	for p := range n.paths {
		out = append(out, p)
	}
	return out
}
