package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/forgegrid/internal/testutil"
	"github.com/vk/forgegrid/internal/watch"
	"github.com/vk/forgegrid/modules/wordcount"
)

// The fsnotify watcher feeds scheduler invalidation: after a debounced
// change the next run sees the new file content.
func TestSystem_WatcherInvalidatesOnWrite(t *testing.T) {
	workspace := `
query "words" {
  rule    = "word_count"
  subject = "watched.txt"
}
`
	res := testutil.RunEngineTest(t, map[string]string{
		"watched.txt": "one\n",
	}, workspace)
	require.NoError(t, res.Err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, 1, res.Results[0].Value.(wordcount.Counts).Words)

	w, err := watch.New(res.Root, []string{"."}, 50*time.Millisecond, res.App.Scheduler())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(res.Root, "watched.txt"), []byte("one two three\n"), 0644))

	// The debounce window plus delivery is bounded; poll until the rerun
	// observes the new content.
	require.Eventually(t, func() bool {
		rerun, err := res.App.RunQueries(context.Background())
		if err != nil || len(rerun) != 1 {
			return false
		}
		return rerun[0].Value.(wordcount.Counts).Words == 3
	}, 5*time.Second, 100*time.Millisecond)
}

// Creating a file must invalidate the directory-listing node of its
// parent, not just index the new path: a dir_totals result computed before
// the create would otherwise stay stale forever.
func TestSystem_WatcherInvalidatesDirListingOnCreate(t *testing.T) {
	workspace := `
query "totals" {
  rule    = "dir_totals"
  subject = "docs"
}
`
	res := testutil.RunEngineTest(t, map[string]string{
		"docs/a.txt": "one two\n",
	}, workspace)
	require.NoError(t, res.Err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, 1, res.Results[0].Value.(wordcount.DirTotals).Files)

	w, err := watch.New(res.Root, []string{"."}, 50*time.Millisecond, res.App.Scheduler())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(res.Root, "docs", "b.txt"), []byte("three four five\n"), 0644))

	require.Eventually(t, func() bool {
		rerun, err := res.App.RunQueries(context.Background())
		if err != nil || len(rerun) != 1 {
			return false
		}
		totals := rerun[0].Value.(wordcount.DirTotals)
		return totals.Files == 2 && totals.Words == 5
	}, 5*time.Second, 100*time.Millisecond)
}
