package scheduler

import (
	"sync"

	"github.com/vk/forgegrid/internal/nodekey"
)

// shardCount trades memory for contention; must be a power of two.
const shardCount = 32

// shard holds one slice of the node table plus the generation counters for
// its keys. Generations survive node removal so a recreated node can be
// told apart from the instance an invalidation discarded.
type shard struct {
	mu    sync.RWMutex
	nodes map[nodekey.Key]*Node
	gens  map[nodekey.Key]uint64
}

// nodeTable is the process-wide concurrent NodeKey→Node map, sharded by key
// hash so independent computations never contend on one lock.
type nodeTable struct {
	shards [shardCount]*shard
}

func newNodeTable() *nodeTable {
	t := &nodeTable{}
	for i := range t.shards {
		t.shards[i] = &shard{
			nodes: make(map[nodekey.Key]*Node),
			gens:  make(map[nodekey.Key]uint64),
		}
	}
	return t
}

func (t *nodeTable) shardFor(key nodekey.Key) *shard {
	return t.shards[key.Hash()&(shardCount-1)]
}

// getOrCreate atomically looks up or inserts the node for a key. Exactly
// one instance is created per (key, generation); racing callers receive
// the winner's node.
func (t *nodeTable) getOrCreate(key nodekey.Key) (n *Node, created bool) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.nodes[key]; ok {
		return existing, false
	}
	n = newNode(key, s.gens[key])
	s.nodes[key] = n
	return n, true
}

// get returns the current node for a key, if any.
func (t *nodeTable) get(key nodekey.Key) (*Node, bool) {
	s := t.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[key]
	return n, ok
}

// holds reports whether the table still maps key to this exact instance.
// A completing run whose node was invalidated mid-flight discards its
// result based on this check.
func (t *nodeTable) holds(n *Node) bool {
	s := t.shardFor(n.key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[n.key] == n
}

// evict removes the node instance and bumps the key's generation. It is a
// no-op if the table has already moved on to a different instance.
func (t *nodeTable) evict(n *Node) bool {
	s := t.shardFor(n.key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nodes[n.key] != n {
		return false
	}
	delete(s.nodes, n.key)
	s.gens[n.key]++
	return true
}

// evictRun removes every node keyed to the given run id, bumping each
// key's generation, and returns the removed instances so the caller can
// unwind their path index entries.
func (t *nodeTable) evictRun(runID string) []*Node {
	var evicted []*Node
	for _, s := range t.shards {
		s.mu.Lock()
		for key, n := range s.nodes {
			if key.RunID == runID {
				delete(s.nodes, key)
				s.gens[key]++
				evicted = append(evicted, n)
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// size returns the number of live nodes, for diagnostics and tests.
func (t *nodeTable) size() int {
	total := 0
	for _, s := range t.shards {
		s.mu.RLock()
		total += len(s.nodes)
		s.mu.RUnlock()
	}
	return total
}

// pathIndex maps filesystem paths to the nodes whose computations read
// them, so invalidation starts from exactly the affected keys instead of
// scanning the whole table.
type pathIndex struct {
	mu    sync.RWMutex
	byPath map[string]map[nodekey.Key]struct{}
}

func newPathIndex() *pathIndex {
	return &pathIndex{byPath: make(map[string]map[nodekey.Key]struct{})}
}

func (p *pathIndex) add(path string, key nodekey.Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys, ok := p.byPath[path]
	if !ok {
		keys = make(map[nodekey.Key]struct{})
		p.byPath[path] = keys
	}
	keys[key] = struct{}{}
}

func (p *pathIndex) keysFor(path string) []nodekey.Key {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := p.byPath[path]
	out := make([]nodekey.Key, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	return out
}

func (p *pathIndex) remove(paths []string, key nodekey.Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, path := range paths {
		if keys, ok := p.byPath[path]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(p.byPath, path)
			}
		}
	}
}
