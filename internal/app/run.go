package app

import (
	"context"
	"fmt"

	"github.com/vk/quarry/internal/ctxlog"
	"github.com/vk/quarry/internal/engine"
	"github.com/vk/quarry/internal/target"
)

// Run builds the requested targets, or the whole graph when none are named.
// The returned Result carries every scheduled rule's terminal state even
// when some rules failed; the error is reserved for infrastructure problems
// such as a requested target that does not exist.
func (a *App) Run(ctx context.Context, targets ...string) (*engine.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	requested := make([]target.BuildTarget, len(targets))
	for i, s := range targets {
		t, err := target.Parse(s)
		if err != nil {
			return nil, err
		}
		requested[i] = t
	}

	if a.config.MetricsPort > 0 {
		a.metricsOnce.Do(func() {
			a.startMetricsServer(a.config.MetricsPort)
		})
	}

	if a.graph.Size() == 0 {
		a.logger.Warn("No rules found in graph, nothing to build.")
		return &engine.Result{Outcomes: map[target.BuildTarget]*engine.Outcome{}}, nil
	}

	a.logger.Info("Starting build.", "rules", a.graph.Size(), "workers", a.config.WorkerCount)
	eng := engine.New(a.graph, a.store, engine.Options{
		Workers:  a.config.WorkerCount,
		FailFast: a.config.FailFast,
	})
	result, err := eng.Run(ctx, requested...)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}

	a.printSummary(result)
	a.logger.Debug("App.Run method finished.")
	return result, nil
}

// printSummary writes the per-rule outcome table to the app's output.
func (a *App) printSummary(result *engine.Result) {
	for _, o := range result.Sorted() {
		fmt.Fprintf(a.outW, "%-7s %s\n", o.State, o.Target)
	}
	fmt.Fprintf(a.outW, "%d steps executed\n", result.StepsExecuted)
	if failure := result.FirstFailure(); failure != nil {
		fmt.Fprintf(a.outW, "build failed: %s: %v\n", failure.Target, failure.Err)
	}
}
