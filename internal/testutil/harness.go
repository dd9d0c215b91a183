package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/forgegrid/internal/app"
	"github.com/vk/forgegrid/internal/rules"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an end-to-end engine run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
	Results   []app.QueryResult
	Root      string
}

// RunEngineTest provides a standardized harness for black-box engine tests
// using a default background context.
func RunEngineTest(t *testing.T, files map[string]string, workspaceHCL string, modules ...rules.Module) *HarnessResult {
	t.Helper()
	return RunEngineTestWithContext(context.Background(), t, files, workspaceHCL, modules...)
}

// RunEngineTestWithContext builds a temporary build root from files, writes
// the workspace configuration next to it, boots a full App with the given
// rule modules, and executes the configured queries.
func RunEngineTestWithContext(ctx context.Context, t *testing.T, files map[string]string, workspaceHCL string, modules ...rules.Module) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	rootDir := filepath.Join(tmpDir, "root")
	require.NoError(t, os.Mkdir(rootDir, 0755))

	for name, content := range files {
		filePath := filepath.Join(rootDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	opts := &app.Options{
		Root:     rootDir,
		LogLevel: "debug",
		Workers:  4,
	}
	if workspaceHCL != "" {
		workspacePath := filepath.Join(tmpDir, "workspace.hcl")
		require.NoError(t, os.WriteFile(workspacePath, []byte(workspaceHCL), 0644))
		opts.ConfigPath = workspacePath
	}

	logBuffer := &SafeBuffer{}

	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, opts, modules...)
	}()

	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
			Root:      rootDir,
		}
	}
	t.Cleanup(func() { _ = testApp.Close() })

	results, runErr := testApp.RunQueries(ctx)

	if os.Getenv("FORGEGRID_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
		Results:   results,
		Root:      rootDir,
	}
}
