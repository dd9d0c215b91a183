package vfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/forgegrid/internal/digest"
)

func newTestTree(t *testing.T, files map[string]string) *OS {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return NewOS(root, nil)
}

func TestReadFile(t *testing.T) {
	r := newTestTree(t, map[string]string{"src/main.go": "package main"})

	fc, err := r.ReadFile(context.Background(), "src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "src/main.go", fc.Path)
	assert.Equal(t, []byte("package main"), fc.Bytes)
	assert.Equal(t, digest.OfString("package main"), fc.Digest)
}

func TestReadFileMissing(t *testing.T) {
	r := newTestTree(t, nil)
	_, err := r.ReadFile(context.Background(), "nope.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.txt")
}

func TestPathEscapeRejected(t *testing.T) {
	r := newTestTree(t, nil)
	_, err := r.ReadFile(context.Background(), "../secret")
	require.Error(t, err)
	_, err = r.Stat(context.Background(), "/etc/passwd")
	require.Error(t, err)
}

func TestReadDirDigestTracksContent(t *testing.T) {
	ctx := context.Background()
	r := newTestTree(t, map[string]string{
		"pkg/a.go": "a",
		"pkg/b.go": "b",
	})

	before, err := r.ReadDir(ctx, "pkg")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, before.Names)

	require.NoError(t, os.WriteFile(filepath.Join(r.Root(), "pkg/a.go"), []byte("changed"), 0o644))
	after, err := r.ReadDir(ctx, "pkg")
	require.NoError(t, err)
	assert.NotEqual(t, before.Digest, after.Digest)
}

func TestStat(t *testing.T) {
	r := newTestTree(t, map[string]string{"f.txt": "12345"})
	st, err := r.Stat(context.Background(), "f.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 5, st.Size)
	assert.False(t, st.IsDir)
}
