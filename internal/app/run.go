package app

import (
	"context"
	"fmt"

	"github.com/vk/forgegrid/internal/ctxlog"
	"github.com/vk/forgegrid/internal/session"
	"github.com/vk/forgegrid/internal/watch"
)

// QueryResult pairs a configured query with its computed product.
type QueryResult struct {
	Name  string
	Value any
}

// Run executes every query from the workspace configuration, optionally
// keeping the process alive to react to file changes when watching is
// enabled.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.Engine.MetricsPort > 0 {
		a.startMetricsServer(a.config.Engine.MetricsPort)
	}

	var watcher *watch.Watcher
	if a.config.Watch.Enabled {
		var err error
		watcher, err = watch.New(a.root, a.config.Watch.Paths, a.config.Watch.Debounce, a.sched)
		if err != nil {
			return fmt.Errorf("failed to start file watcher: %w", err)
		}
		go watcher.Run(ctx)
		defer watcher.Close()
		a.logger.Info("Watching for file changes.", "paths", a.config.Watch.Paths)
	}

	results, err := a.RunQueries(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		a.logger.Info("Query completed.", "query", res.Name, "result", fmt.Sprintf("%v", res.Value))
		fmt.Fprintf(a.outW, "%s: %v\n", res.Name, res.Value)
	}

	if watcher != nil {
		a.logger.Info("Initial run finished, watching for changes. Interrupt to exit.")
		<-ctx.Done()
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// RunQueries executes the configured queries against a fresh session and
// returns their products in configuration order. The first failing query
// aborts the run.
func (a *App) RunQueries(ctx context.Context) ([]QueryResult, error) {
	if len(a.config.Queries) == 0 {
		a.logger.Warn("No queries configured, nothing to execute.")
		return nil, nil
	}

	sess := session.New(ctx)
	defer func() {
		sess.Cancel()
		a.sched.ReleaseSession(sess)
	}()

	results := make([]QueryResult, 0, len(a.config.Queries))
	for _, q := range a.config.Queries {
		rule, ok := a.registry.RuleByName(q.Rule)
		if !ok {
			return nil, fmt.Errorf("query '%s' references unknown rule '%s'", q.Name, q.Rule)
		}
		subject, err := q.SubjectValue()
		if err != nil {
			return nil, fmt.Errorf("query '%s': %w", q.Name, err)
		}

		a.logger.Debug("Executing query.", "query", q.Name, "rule", q.Rule)
		value, err := a.sched.ProductRequest(ctx, sess, rule.Output, subject)
		if err != nil {
			return nil, fmt.Errorf("query '%s' failed: %w", q.Name, err)
		}
		results = append(results, QueryResult{Name: q.Name, Value: value})
	}

	stats := sess.Stats()
	a.logger.Debug("Session finished.",
		"requests", stats.Requests,
		"executions", stats.Executions,
		"memo_hits", stats.MemoHits,
	)
	return results, nil
}
