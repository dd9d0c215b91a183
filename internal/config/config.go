// Package config defines the engine's workspace configuration model and
// its HCL loader. A workspace file declares engine tuning, the optional
// filesystem watcher, and named root queries the CLI can execute.
package config

import (
	"fmt"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Engine holds scheduler and logging settings.
type Engine struct {
	Workers     int
	LogLevel    string
	LogFormat   string
	MetricsPort int
	CacheDir    string
}

// Watch configures the optional fsnotify invalidation adapter.
type Watch struct {
	Enabled  bool
	Paths    []string
	Debounce time.Duration
}

// Query is one named root request: the rule whose output to compute and
// the subject value to compute it for.
type Query struct {
	Name    string
	Rule    string
	Subject cty.Value
}

// SubjectValue converts the HCL subject attribute into a Go value. Strings,
// numbers and bools are supported; absent subjects resolve to nil so the
// engine substitutes its unit subject.
func (q Query) SubjectValue() (any, error) {
	if q.Subject.IsNull() || q.Subject == cty.NilVal {
		return nil, nil
	}
	switch q.Subject.Type() {
	case cty.String:
		var s string
		if err := gocty.FromCtyValue(q.Subject, &s); err != nil {
			return nil, err
		}
		return s, nil
	case cty.Number:
		var n int
		if err := gocty.FromCtyValue(q.Subject, &n); err != nil {
			return nil, err
		}
		return n, nil
	case cty.Bool:
		var b bool
		if err := gocty.FromCtyValue(q.Subject, &b); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("query '%s': unsupported subject type %s", q.Name, q.Subject.Type().FriendlyName())
	}
}

// Model is the complete loaded workspace configuration.
type Model struct {
	Engine  Engine
	Watch   Watch
	Queries []Query
}

// Defaults returns the model used when a setting (or the whole file) is
// absent.
func Defaults() Model {
	return Model{
		Engine: Engine{
			Workers:   0, // 0 means core count, decided by the scheduler
			LogLevel:  "info",
			LogFormat: "text",
		},
		Watch: Watch{
			Debounce: 250 * time.Millisecond,
		},
	}
}

// Validate checks cross-field consistency after loading and flag merging.
func (m *Model) Validate() error {
	switch m.Engine.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format '%s': must be 'text' or 'json'", m.Engine.LogFormat)
	}
	switch m.Engine.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level '%s': must be 'debug', 'info', 'warn', or 'error'", m.Engine.LogLevel)
	}
	if m.Engine.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if m.Watch.Enabled && len(m.Watch.Paths) == 0 {
		return fmt.Errorf("watch block requires at least one path")
	}
	seen := make(map[string]bool)
	for _, q := range m.Queries {
		if q.Name == "" {
			return fmt.Errorf("query with empty name")
		}
		if q.Rule == "" {
			return fmt.Errorf("query '%s': rule is required", q.Name)
		}
		if seen[q.Name] {
			return fmt.Errorf("duplicate query name '%s'", q.Name)
		}
		seen[q.Name] = true
	}
	return nil
}
