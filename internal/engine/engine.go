// Package engine executes a dependency graph of build rules with build
// avoidance: each rule's key is computed from its type, target, fields,
// input content and dependency keys, and a matching committed artifact
// record lets the rule be reused without running any steps.
//
// Scheduling follows the graph's topology. A rule becomes eligible the
// moment its last dependency reaches a terminal success state; independent
// subtrees run in parallel across a bounded worker pool. Each rule gets at
// most one build attempt per run, and a failure cascades Blocked to its
// transitive dependents without disturbing unrelated subtrees.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vk/quarry/internal/artifact"
	"github.com/vk/quarry/internal/ctxlog"
	"github.com/vk/quarry/internal/graph"
	"github.com/vk/quarry/internal/metrics"
	"github.com/vk/quarry/internal/rule"
	"github.com/vk/quarry/internal/rulekey"
	"github.com/vk/quarry/internal/step"
	"github.com/vk/quarry/internal/target"
)

// Options configure one Engine.
type Options struct {
	// Workers bounds concurrent rule execution. Zero means DefaultWorkers.
	Workers int
	// FailFast cancels in-flight work after the first failure instead of
	// finishing unrelated subtrees.
	FailFast bool
	// BuildID labels the run. Empty means a fresh UUID.
	BuildID string
}

// DefaultWorkers is the worker pool size when none is configured.
const DefaultWorkers = 10

// Engine runs one dependency graph against one artifact store. An Engine is
// single-use: construct a fresh one (with a fresh graph) per invocation.
type Engine struct {
	graph    *graph.Graph
	store    artifact.Store
	files    *rulekey.FileHasher
	workers  int
	failFast bool
	buildID  string
}

// New creates an engine for the given graph and artifact store.
func New(g *graph.Graph, store artifact.Store, opts Options) *Engine {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	buildID := opts.BuildID
	if buildID == "" {
		buildID = uuid.NewString()
	}
	return &Engine{
		graph:    g,
		store:    store,
		files:    rulekey.NewFileHasher(),
		workers:  workers,
		failFast: opts.FailFast,
		buildID:  buildID,
	}
}

// run carries the mutable state of one Run call.
type run struct {
	*Engine
	nodes  map[target.BuildTarget]*node
	ready  chan *node
	wg     sync.WaitGroup
	steps  atomic.Int64
	cancel context.CancelFunc
}

// Run builds the requested targets and everything they depend on. With no
// targets given, the whole graph is built. The returned Result holds every
// scheduled rule's terminal state; Run itself errors only on infrastructure
// problems such as an unknown requested target.
func (e *Engine) Run(ctx context.Context, requested ...target.BuildTarget) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("build_id", e.buildID)
	ctx = ctxlog.WithLogger(ctx, logger)

	scheduled, err := e.scheduledRules(requested)
	if err != nil {
		return nil, err
	}
	logger.Debug("Engine run starting.", "rules", len(scheduled), "workers", e.workers)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		Engine: e,
		nodes:  make(map[target.BuildTarget]*node, len(scheduled)),
		ready:  make(chan *node, len(scheduled)),
		cancel: cancel,
	}
	for _, sr := range scheduled {
		r.nodes[sr.Target()] = &node{rule: sr}
	}
	// Link dependents and seed dependency counts. Iterating scheduled in
	// target order keeps each node's dependent list deterministic.
	for _, sr := range scheduled {
		n := r.nodes[sr.Target()]
		n.depCount.Store(int32(len(sr.Deps())))
		for _, dep := range sr.Deps() {
			dn := r.nodes[dep.Target()]
			dn.dependents = append(dn.dependents, n)
		}
	}

	r.wg.Add(len(r.nodes))
	for _, sr := range scheduled {
		n := r.nodes[sr.Target()]
		if n.depCount.Load() == 0 {
			r.ready <- n
		}
	}

	go func() {
		r.wg.Wait()
		close(r.ready)
	}()

	group, workerCtx := errgroup.WithContext(runCtx)
	for i := 0; i < e.workers; i++ {
		group.Go(func() error {
			r.worker(workerCtx)
			return nil
		})
	}
	// Workers only stop when the ready queue closes; they never return an
	// error themselves.
	_ = group.Wait()

	result := &Result{
		BuildID:       e.buildID,
		Outcomes:      make(map[target.BuildTarget]*Outcome, len(r.nodes)),
		StepsExecuted: int(r.steps.Load()),
	}
	for t, n := range r.nodes {
		result.Outcomes[t] = &Outcome{
			Target: t,
			State:  n.currentState(),
			Key:    n.key,
			Err:    n.err,
		}
	}
	logger.Info("Engine run finished.",
		"rules", len(result.Outcomes),
		"steps_executed", result.StepsExecuted,
		"success", result.Success())
	return result, nil
}

// scheduledRules returns the rules to run: the whole graph, or the
// transitive closure of the requested targets.
func (e *Engine) scheduledRules(requested []target.BuildTarget) ([]rule.Rule, error) {
	if len(requested) == 0 {
		return e.graph.Rules(), nil
	}
	roots := make([]rule.Rule, 0, len(requested))
	for _, t := range requested {
		r, err := e.graph.FindByTarget(t)
		if err != nil {
			return nil, err
		}
		roots = append(roots, r)
	}
	return e.graph.TransitiveClosure(roots, nil), nil
}

// worker is the processing loop for one pool slot.
func (r *run) worker(ctx context.Context) {
	for n := range r.ready {
		if err := ctx.Err(); err != nil {
			r.completeNode(ctx, n, Failed, err)
			continue
		}
		// The ready queue delivers each node to exactly one worker, and
		// the CAS is the single claim on the rule's build attempt. A node
		// already finished here was cancelled by a racing cascade.
		if !n.state.CompareAndSwap(int32(Pending), int32(Building)) {
			continue
		}
		r.buildNode(ctx, n)
	}
}

// buildNode takes one claimed node to a terminal state.
func (r *run) buildNode(ctx context.Context, n *node) {
	logger := ctxlog.FromContext(ctx).With("target", n.rule.Target().String())

	key, err := n.rule.KeyCell().Get(func() (rulekey.Key, error) {
		return r.computeKey(n)
	})
	if err != nil {
		logger.Error("Rule key computation failed.", "error", err)
		r.completeNode(ctx, n, Failed, err)
		return
	}
	n.key = key

	record, err := r.store.Get(key)
	if err != nil {
		logger.Error("Artifact cache lookup failed.", "error", err)
		r.completeNode(ctx, n, Failed, err)
		return
	}
	if record != nil {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		if err := materializeOutputs(record); err != nil {
			logger.Error("Cached output restore failed.", "error", err)
			r.completeNode(ctx, n, Failed, err)
			return
		}
		logger.Debug("Rule reused from cache.", "key", key.String())
		r.completeNode(ctx, n, Reused, nil)
		return
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	start := time.Now()
	steps, err := n.rule.Steps(ctx)
	if err != nil {
		r.completeNode(ctx, n, Failed, &StepExecutionError{Target: n.rule.Target(), Err: err})
		return
	}
	executed, err := step.Run(ctx, steps)
	r.steps.Add(int64(executed))
	metrics.StepsExecuted.Add(float64(executed))
	if err != nil {
		logger.Error("Rule build failed.", "error", err, "steps_executed", executed)
		r.completeNode(ctx, n, Failed, &StepExecutionError{Target: n.rule.Target(), Err: err})
		return
	}
	metrics.BuildDuration.Observe(time.Since(start).Seconds())

	if err := r.commitOutputs(n, key); err != nil {
		logger.Error("Artifact commit failed.", "error", err)
		r.completeNode(ctx, n, Failed, err)
		return
	}
	logger.Debug("Rule built.", "key", key.String(), "steps", executed)
	r.completeNode(ctx, n, Built, nil)
}

// computeKey assembles the rule key: type tag, the rule's own identity, the
// rule kind's ordered field contributions, input file content, then
// dependency keys in declared order. The identity contribution keeps two
// identically-declared rules in different packages from sharing a key, and
// with it a cache record that carries only the first rule's output paths.
func (r *run) computeKey(n *node) (rulekey.Key, error) {
	b := rulekey.NewBuilder(string(n.rule.Type()), r.files)
	b.SetField("target", n.rule.Target().String())
	if err := n.rule.AppendToRuleKey(b); err != nil {
		return rulekey.Key{}, fmt.Errorf("rule key fields for %s: %w", n.rule.Target(), err)
	}
	for _, input := range n.rule.Inputs() {
		if err := b.AddPath(input); err != nil {
			return rulekey.Key{}, err
		}
	}
	for _, dep := range n.rule.Deps() {
		// Dependency keys are finalized before a node is dispatched, so
		// Get never computes here; it only reads the memoized value.
		depKey, err := dep.KeyCell().Get(func() (rulekey.Key, error) {
			return rulekey.Key{}, fmt.Errorf("dependency %s has no computed key", dep.Target())
		})
		if err != nil {
			return rulekey.Key{}, err
		}
		b.AddRuleKeys(depKey)
	}
	return b.Build(), nil
}

// commitOutputs reads the rule's declared outputs and stores a record. The
// record is committed only after every output exists, so a partial build is
// never published as valid.
func (r *run) commitOutputs(n *node, key rulekey.Key) error {
	paths := n.rule.OutputPaths()
	outputs := make([]artifact.Output, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("rule %s did not produce declared output %s: %w", n.rule.Target(), path, err)
		}
		outputs = append(outputs, artifact.Output{Path: path, Content: content})
	}
	record := artifact.NewRecord(key, r.buildID, outputs, time.Time{})
	if err := r.store.Put(record); err != nil {
		return fmt.Errorf("commit artifact for %s: %w", n.rule.Target(), err)
	}
	return nil
}

// materializeOutputs ensures every output recorded in a cache hit is present
// and intact on disk, rewriting any missing or diverged file.
func materializeOutputs(record *artifact.Record) error {
	for _, out := range record.Outputs {
		existing, err := os.ReadFile(out.Path)
		if err == nil && rulekey.HashBytes(existing).String() == out.ContentHash {
			continue
		}
		w := step.WriteFileStep{Path: out.Path, Data: out.Content}
		if err := w.Execute(context.Background()); err != nil {
			return fmt.Errorf("restore cached output %s: %w", out.Path, err)
		}
	}
	return nil
}

// completeNode performs the node's single terminal transition, updates
// metrics, unlocks or blocks dependents, and releases the node's slot in the
// run's completion count.
func (r *run) completeNode(ctx context.Context, n *node, s State, err error) {
	if !n.finish(s, err) {
		return
	}
	metrics.RulesFinished.WithLabelValues(stateLabel(s)).Inc()

	if s.Success() {
		for _, dependent := range n.dependents {
			if dependent.depCount.Add(-1) == 0 {
				r.ready <- dependent
			}
		}
	} else {
		if s == Failed && r.failFast {
			r.cancel()
		}
		r.blockDependents(ctx, n, n.rule.Target())
	}
	r.wg.Done()
}

// blockDependents transitively marks everything downstream of a failed node
// as Blocked. Blocked nodes never entered the ready queue (their dependency
// count never reached zero), so marking them here is the only completion
// they get.
func (r *run) blockDependents(ctx context.Context, n *node, cause target.BuildTarget) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range n.dependents {
		blockErr := &BlockedError{Target: dependent.rule.Target(), Cause: cause}
		if dependent.finish(Blocked, blockErr) {
			logger.Warn("Rule blocked by dependency failure.",
				"target", dependent.rule.Target().String(),
				"cause", cause.String())
			metrics.RulesFinished.WithLabelValues(stateLabel(Blocked)).Inc()
			r.blockDependents(ctx, dependent, cause)
			r.wg.Done()
		}
	}
}

func stateLabel(s State) string {
	switch s {
	case Built:
		return "built"
	case Reused:
		return "reused"
	case Failed:
		return "failed"
	default:
		return "blocked"
	}
}
