package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/forgegrid/internal/config"
	"github.com/vk/forgegrid/internal/ctxlog"
	"github.com/vk/forgegrid/internal/diskcache"
	"github.com/vk/forgegrid/internal/metrics"
	"github.com/vk/forgegrid/internal/rulegraph"
	"github.com/vk/forgegrid/internal/rules"
	"github.com/vk/forgegrid/internal/scheduler"
	"github.com/vk/forgegrid/internal/vfs"
)

// Options holds everything an App instance needs to start. Zero values
// defer to the workspace configuration file.
type Options struct {
	// ConfigPath locates the workspace HCL file. Empty means run on
	// defaults with no configured queries.
	ConfigPath string

	// Root is the build root all rule file access is resolved against.
	Root string

	// The remaining fields override the corresponding engine settings
	// from the workspace file when set.
	LogLevel    string
	LogFormat   string
	Workers     int
	MetricsPort int
	CacheDir    string
	Watch       bool
}

// App encapsulates the engine's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *config.Model
	registry *rules.Registry
	graph    *rulegraph.Graph
	sched    *scheduler.Scheduler
	fs       *vfs.OS
	cache    *diskcache.Cache
	metrics  *metrics.Metrics
	root     string
}

// NewApp is the constructor for the engine application. It returns a fully
// initialized App instance, including its own isolated logger, registry,
// and validated rule graph. Startup errors are fatal and panic; the caller
// recovers them into a clean exit.
func NewApp(outW io.Writer, opts *Options, modules ...rules.Module) *App {
	cfgModel, err := loadConfig(opts)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}

	logger := newLogger(cfgModel.Engine.LogLevel, cfgModel.Engine.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := rules.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All rule modules registered.", "count", len(modules), "rules", len(reg.Rules()))

	// Static validation happens before any request is accepted. A rule set
	// that cannot form an unambiguous graph is a programmer error.
	graph, err := rulegraph.Build(ctx, reg)
	if err != nil {
		panic(fmt.Errorf("rule graph validation failed: %w", err))
	}
	logger.Debug("Rule graph validated.", "edges", graph.Len())

	var cache *diskcache.Cache
	if cfgModel.Engine.CacheDir != "" {
		cache, err = diskcache.Open(diskcache.Config{Path: cfgModel.Engine.CacheDir})
		if err != nil {
			panic(fmt.Errorf("failed to open digest cache: %w", err))
		}
		logger.Debug("Digest cache opened.", "dir", cfgModel.Engine.CacheDir)
	}

	var cacheIface vfs.DigestCache
	if cache != nil {
		cacheIface = cache
	}
	fsReader := vfs.NewOS(opts.Root, cacheIface)

	m := metrics.New()
	sched := scheduler.New(graph, fsReader,
		scheduler.WithWorkers(cfgModel.Engine.Workers),
		scheduler.WithMetrics(m),
	)

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfgModel,
		registry: reg,
		graph:    graph,
		sched:    sched,
		fs:       fsReader,
		cache:    cache,
		metrics:  m,
		root:     opts.Root,
	}
}

// loadConfig reads the workspace file (when given) and applies option
// overrides on top.
func loadConfig(opts *Options) (*config.Model, error) {
	var (
		model *config.Model
		err   error
	)
	if opts.ConfigPath != "" {
		model, err = config.Load(context.Background(), opts.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		defaults := config.Defaults()
		model = &defaults
	}

	if opts.LogLevel != "" {
		model.Engine.LogLevel = opts.LogLevel
	}
	if opts.LogFormat != "" {
		model.Engine.LogFormat = opts.LogFormat
	}
	if opts.Workers > 0 {
		model.Engine.Workers = opts.Workers
	}
	if opts.MetricsPort > 0 {
		model.Engine.MetricsPort = opts.MetricsPort
	}
	if opts.CacheDir != "" {
		model.Engine.CacheDir = opts.CacheDir
	}
	if opts.Watch {
		model.Watch.Enabled = true
		if len(model.Watch.Paths) == 0 {
			model.Watch.Paths = []string{"."}
		}
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return model, nil
}

// Registry returns the application's rule registry. Primarily for testing.
func (a *App) Registry() *rules.Registry {
	return a.registry
}

// Scheduler returns the node scheduler. Primarily for testing.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.sched
}

// Close releases resources held by the app.
func (a *App) Close() error {
	if a.cache != nil {
		return a.cache.Close()
	}
	return nil
}
