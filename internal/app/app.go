package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/vk/quarry/internal/artifact"
	"github.com/vk/quarry/internal/ctxlog"
	"github.com/vk/quarry/internal/graph"
	"github.com/vk/quarry/internal/hcl"
	"github.com/vk/quarry/internal/resolver"
	"github.com/vk/quarry/internal/rules"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle: the resolved graph, the artifact store and the logger.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	graph  *graph.Graph
	store  artifact.Store

	// metricsOnce keeps repeated Run calls on one App from binding the
	// metrics port a second time.
	metricsOnce sync.Once
}

// NewApp is the constructor for the main application. It loads the
// project's build files and resolves them into a graph, so a returned App
// is ready to run. A failure here is a startup error: bad build files, a
// dependency cycle or an unreadable project tree.
func NewApp(outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := hcl.NewLoader().Load(ctx, cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load build files: %w", err)
	}
	logger.Debug("Build files loaded and translated into unified model.", "rules", len(model.Specs))

	builders, err := rules.Builders(model, rules.Config{RootDir: cfg.RootDir, OutDir: cfg.OutDir})
	if err != nil {
		return nil, fmt.Errorf("invalid rule declaration: %w", err)
	}

	g, err := resolver.Resolve(ctx, builders)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dependency graph: %w", err)
	}
	logger.Debug("Dependency graph resolved.", "rule_count", g.Size())

	return &App{
		outW:   outW,
		logger: logger,
		config: cfg,
		graph:  g,
		store:  artifact.NewFileStore(cfg.CacheDir, clockwork.NewRealClock()),
	}, nil
}

// Graph returns the resolved dependency graph. This is primarily for
// testing.
func (a *App) Graph() *graph.Graph {
	return a.graph
}
