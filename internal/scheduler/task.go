package scheduler

import (
	"context"
	"fmt"
	"reflect"

	"golang.org/x/sync/errgroup"

	"github.com/vk/forgegrid/internal/rules"
	"github.com/vk/forgegrid/internal/session"
	"github.com/vk/forgegrid/internal/vfs"
)

// Task drives a single rule body. It implements rules.TaskContext: Gets are
// the body's suspension points, and all filesystem access routes through
// the scheduler's vfs boundary so touched paths are recorded for
// invalidation.
type Task struct {
	scheduler *Scheduler
	sess      *session.Session
	node      *Node
	path      *callPath
	ctx       context.Context

	// holding tracks whether this body currently owns a worker slot. It is
	// only touched from the body's own goroutine.
	holding bool
}

// Context returns the execution context carrying logger and cancellation.
func (t *Task) Context() context.Context {
	return t.ctx
}

// suspend releases the body's worker slot for the duration of fn, so a
// blocked body holds only its continuation state, not a thread's slot.
// When the session ends before the slot can be reacquired the body resumes
// without one, just far enough to unwind with a cancellation error.
func (t *Task) suspend(fn func() error) error {
	t.scheduler.slots.Release(1)
	t.holding = false
	err := fn()
	if acqErr := t.scheduler.slots.Acquire(t.sess.Context(), 1); acqErr != nil {
		return fmt.Errorf("resuming after suspension: %w", ErrCancelled)
	}
	t.holding = true
	return err
}

// Get requests one product and blocks until it resolves.
func (t *Task) Get(output reflect.Type, subject any) (any, error) {
	if t.sess.Cancelled() {
		return nil, fmt.Errorf("session %s: %w", t.sess.RunID(), ErrCancelled)
	}
	var value any
	err := t.suspend(func() error {
		var err error
		value, err = t.scheduler.request(t.ctx, t.sess, output, subject, t.path, t.node)
		return err
	})
	return value, err
}

// GetAll requests several products concurrently and resumes once all have
// resolved. Results are positional; the first failure aborts the batch and
// is returned.
func (t *Task) GetAll(reqs []rules.Request) ([]any, error) {
	if t.sess.Cancelled() {
		return nil, fmt.Errorf("session %s: %w", t.sess.RunID(), ErrCancelled)
	}
	results := make([]any, len(reqs))
	err := t.suspend(func() error {
		g, ctx := errgroup.WithContext(t.ctx)
		for i, req := range reqs {
			g.Go(func() error {
				v, err := t.scheduler.request(ctx, t.sess, req.Output, req.Subject, t.path, t.node)
				if err != nil {
					return err
				}
				results[i] = v
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ReadFile reads a file through the vfs boundary, recording the path as an
// input of the current node. The path is recorded even when the read
// fails: creating the file later must invalidate this computation.
func (t *Task) ReadFile(path string) (vfs.FileContent, error) {
	t.recordPath(path)
	return t.scheduler.fs.ReadFile(t.ctx, path)
}

// Stat returns file metadata, recording the path.
func (t *Task) Stat(path string) (vfs.FileStat, error) {
	t.recordPath(path)
	return t.scheduler.fs.Stat(t.ctx, path)
}

// ReadDir lists a directory, recording the path.
func (t *Task) ReadDir(path string) (vfs.Listing, error) {
	t.recordPath(path)
	return t.scheduler.fs.ReadDir(t.ctx, path)
}

// recordPath indexes a filesystem path under one canonical spelling, so a
// body passing "./a.txt" or "docs//a.txt" still matches the cleaned
// relative paths change notifications arrive with.
func (t *Task) recordPath(path string) {
	p := canonicalPath(path)
	t.node.addPath(p)
	t.scheduler.paths.add(p, t.node.key)
}
