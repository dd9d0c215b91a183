package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBytesFull(t *testing.T) {
	src := `
engine {
  workers      = 8
  log_level    = "debug"
  log_format   = "json"
  metrics_port = 9090
  cache_dir    = ".cache"
}

watch {
  paths       = ["src", "lib"]
  debounce_ms = 100
}

query "stats" {
  rule    = "file_stats"
  subject = "src/main.go"
}

query "answer" {
  rule    = "answer"
  subject = 42
}
`
	m, err := LoadBytes(context.Background(), []byte(src), "workspace.hcl")
	require.NoError(t, err)

	assert.Equal(t, 8, m.Engine.Workers)
	assert.Equal(t, "debug", m.Engine.LogLevel)
	assert.Equal(t, "json", m.Engine.LogFormat)
	assert.Equal(t, 9090, m.Engine.MetricsPort)
	assert.Equal(t, ".cache", m.Engine.CacheDir)

	assert.True(t, m.Watch.Enabled)
	assert.Equal(t, []string{"src", "lib"}, m.Watch.Paths)
	assert.Equal(t, 100*time.Millisecond, m.Watch.Debounce)

	require.Len(t, m.Queries, 2)
	subj, err := m.Queries[0].SubjectValue()
	require.NoError(t, err)
	assert.Equal(t, "src/main.go", subj)

	subj, err = m.Queries[1].SubjectValue()
	require.NoError(t, err)
	assert.Equal(t, 42, subj)
}

func TestLoadBytesDefaults(t *testing.T) {
	m, err := LoadBytes(context.Background(), []byte(""), "empty.hcl")
	require.NoError(t, err)

	assert.Equal(t, 0, m.Engine.Workers)
	assert.Equal(t, "info", m.Engine.LogLevel)
	assert.Equal(t, "text", m.Engine.LogFormat)
	assert.False(t, m.Watch.Enabled)
	assert.Equal(t, 250*time.Millisecond, m.Watch.Debounce)
	assert.Empty(t, m.Queries)
}

func TestLoadBytesNullSubject(t *testing.T) {
	src := `
query "unit" {
  rule = "version"
}
`
	m, err := LoadBytes(context.Background(), []byte(src), "q.hcl")
	require.NoError(t, err)
	require.Len(t, m.Queries, 1)

	subj, err := m.Queries[0].SubjectValue()
	require.NoError(t, err)
	assert.Nil(t, subj)
}

func TestLoadBytesRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad log_format":     `engine { log_format = "xml" }`,
		"bad log_level":      `engine { log_level = "verbose" }`,
		"negative workers":   `engine { workers = -1 }`,
		"watch without path": `watch { paths = [] }`,
		"query no rule":      `query "x" { rule = "" }`,
		"duplicate query":    `query "x" { rule = "a" }` + "\n" + `query "x" { rule = "b" }`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadBytes(context.Background(), []byte(src), "bad.hcl")
			require.Error(t, err)
		})
	}
}

func TestLoadBytesSyntaxError(t *testing.T) {
	_, err := LoadBytes(context.Background(), []byte("engine {"), "broken.hcl")
	require.Error(t, err)
}
