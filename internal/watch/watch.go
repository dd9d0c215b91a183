// Package watch adapts fsnotify events into engine invalidation. It
// watches directories recursively, batches changes through a debounce
// window so editor save storms trigger one invalidation pass, and reports
// changed paths relative to the build root — the form the scheduler's path
// index records them in.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/forgegrid/internal/ctxlog"
)

// Invalidator is the sink for batched change notifications. Implemented by
// the scheduler.
type Invalidator interface {
	NotifyChanged(ctx context.Context, paths []string) int
}

// Watcher drives one fsnotify watcher over a set of roots.
type Watcher struct {
	root     string
	debounce time.Duration
	sink     Invalidator

	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// New creates a watcher rooted at the build root. Each entry of paths is
// a directory (relative to root) to watch recursively.
func New(root string, paths []string, debounce time.Duration, sink Invalidator) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		debounce: debounce,
		sink:     sink,
		fsw:      fsw,
		done:     make(chan struct{}),
	}

	for _, p := range paths {
		if err := w.addRecursive(filepath.Join(root, p)); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Run processes events until the context ends or Close is called. It is
// intended to be a long-lived goroutine owned by the App.
func (w *Watcher) Run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	defer close(w.done)

	var (
		pending = make(map[string]struct{})
		timer   *time.Timer
		fire    <-chan time.Time
	)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]struct{})
		removed := w.sink.NotifyChanged(ctx, paths)
		logger.Debug("Watcher invalidated changed paths.", "paths", len(paths), "removed_nodes", removed)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				flush()
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil {
				logger.Warn("Ignoring event outside build root.", "path", event.Name)
				continue
			}
			pending[rel] = struct{}{}

			// Creates and removals change the parent's listing too; nodes
			// that read the directory are indexed under the directory path,
			// not the child's.
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if dir := filepath.Dir(rel); dir != rel {
					pending[dir] = struct{}{}
				}
			}

			// New directories join the watch set so nested creates are seen.
			if event.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = w.addRecursive(event.Name)
				}
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			flush()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("Filesystem watcher error.", "error", err)
		}
	}
}

// Close stops event delivery; Run returns after draining.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	return w.fsw.Close()
}
