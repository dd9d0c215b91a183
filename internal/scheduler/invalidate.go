package scheduler

import (
	"context"
	"path"
	"path/filepath"

	"github.com/vk/forgegrid/internal/ctxlog"
	"github.com/vk/forgegrid/internal/nodekey"
	"github.com/vk/forgegrid/internal/session"
)

// canonicalPath is the single spelling a path is indexed and looked up
// under: slash-separated and cleaned. recordPath and Invalidate must agree
// on it or a node becomes unreachable for invalidation.
func canonicalPath(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

// Invalidate removes every node whose computation read one of the given
// paths, then transitively every node that depended on a removed node,
// walking the recorded reverse edges. Work is proportional to the affected
// subgraph, never the full table. Returns the number of removed nodes.
//
// Safe to call concurrently with in-flight requests: a still-running body
// whose node was removed has its result discarded on completion, and its
// waiters retry against a fresh node.
func (s *Scheduler) Invalidate(ctx context.Context, paths []string) int {
	logger := ctxlog.FromContext(ctx)

	var frontier []nodekey.Key
	for _, p := range paths {
		frontier = append(frontier, s.paths.keysFor(canonicalPath(p))...)
	}

	visited := make(map[nodekey.Key]struct{})
	removed := 0
	for len(frontier) > 0 {
		key := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = struct{}{}

		n, ok := s.table.get(key)
		if !ok {
			continue
		}

		// Mark stale before evicting so a waiter that already holds the
		// instance never mistakes it for current. Running nodes keep their
		// done channel open; their result is discarded at completion.
		n.stale.Store(true)
		if s.table.evict(n) {
			removed++
		}
		s.paths.remove(n.pathsSnapshot(), n.key)
		frontier = append(frontier, n.dependentsSnapshot()...)
	}

	if removed > 0 {
		logger.Debug("Invalidation removed nodes.", "paths", len(paths), "removed", removed)
	}
	s.metrics.AddInvalidated(removed)
	return removed
}

// NotifyChanged is the hook an external filesystem watcher calls when
// paths change on disk.
func (s *Scheduler) NotifyChanged(ctx context.Context, paths []string) int {
	return s.Invalidate(ctx, paths)
}

// ReleaseSession drops the run-scoped nodes an ended session accumulated.
// Uncacheable rules key their nodes by run id; without this sweep every
// session would permanently grow the process-wide table. Shared cacheable
// nodes are untouched. Returns the number of dropped nodes.
func (s *Scheduler) ReleaseSession(sess *session.Session) int {
	evicted := s.table.evictRun(sess.RunID())
	for _, n := range evicted {
		n.stale.Store(true)
		s.paths.remove(n.pathsSnapshot(), n.key)
	}
	return len(evicted)
}
