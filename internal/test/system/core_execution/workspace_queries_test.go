package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/forgegrid/internal/testutil"
	"github.com/vk/forgegrid/modules/wordcount"
)

// The workspace file drives the built-in modules end to end: paths arrive
// as query subjects, products come back in configuration order.
func TestSystem_WorkspaceDrivesCoreModules(t *testing.T) {
	workspace := `
engine {
  log_level = "debug"
}

query "readme_words" {
  rule    = "word_count"
  subject = "README.md"
}

query "docs_totals" {
  rule    = "dir_totals"
  subject = "docs"
}
`
	res := testutil.RunEngineTest(t, map[string]string{
		"README.md":  "hello incremental world\n",
		"docs/a.txt": "one two\n",
		"docs/b.txt": "three\n",
	}, workspace)
	require.NoError(t, res.Err)
	require.Len(t, res.Results, 2)

	assert.Equal(t, "readme_words", res.Results[0].Name)
	counts := res.Results[0].Value.(wordcount.Counts)
	assert.Equal(t, 3, counts.Words)
	assert.Equal(t, 1, counts.Lines)

	assert.Equal(t, "docs_totals", res.Results[1].Name)
	totals := res.Results[1].Value.(wordcount.DirTotals)
	assert.Equal(t, 2, totals.Files)
	assert.Equal(t, 3, totals.Words)
}
