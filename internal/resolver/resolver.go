// Package resolver turns an ordered collection of rule builder
// specifications into a fully linked dependency graph. Resolution is a
// one-shot pass: a builder runs only after every builder it depends on has
// produced its rule, so builders can inspect concrete dependency instances
// (for example, to check that a dependency exposes a required capability).
package resolver

import (
	"context"
	"fmt"

	"github.com/vk/quarry/internal/ctxlog"
	"github.com/vk/quarry/internal/graph"
	"github.com/vk/quarry/internal/rule"
	"github.com/vk/quarry/internal/target"
)

// Builder is one rule specification awaiting resolution. It carries its own
// target, its declared dependency targets, and whatever type-specific fields
// its rule kind needs.
type Builder interface {
	// Target identifies the rule this builder will produce.
	Target() target.BuildTarget
	// DepTargets lists the declared dependencies in declared order.
	DepTargets() []target.BuildTarget
	// Build constructs the rule. Every declared dependency is already
	// registered in g. Returning an error aborts the whole resolution;
	// builders return *TypeConstraintError when a dependency lacks a
	// capability the rule kind requires.
	Build(ctx context.Context, g *graph.Graph) (rule.Rule, error)
}

// UnresolvedDependencyError reports a declared dependency target absent from
// the builder set.
type UnresolvedDependencyError struct {
	From    target.BuildTarget
	Missing target.BuildTarget
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("%s depends on %s, which is not defined", e.From, e.Missing)
}

// TypeConstraintError reports a dependency that resolved to a rule lacking a
// capability the depending rule kind requires.
type TypeConstraintError struct {
	From       target.BuildTarget
	Dependency target.BuildTarget
	Constraint string
}

func (e *TypeConstraintError) Error() string {
	return fmt.Sprintf("%s requires %s to be %s, but it is not", e.From, e.Dependency, e.Constraint)
}

// Resolve builds the dependency graph from the given builders. Construction
// errors (duplicate targets, unresolved dependencies, cycles, violated type
// constraints) abort resolution immediately: a partially built graph is
// never returned.
func Resolve(ctx context.Context, builders []Builder) (*graph.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Resolution started.", "builders", len(builders))

	byTarget := make(map[target.BuildTarget]Builder, len(builders))
	for _, b := range builders {
		if _, exists := byTarget[b.Target()]; exists {
			return nil, &graph.DuplicateTargetError{Target: b.Target()}
		}
		byTarget[b.Target()] = b
	}

	g := graph.New()
	resolved := make(map[target.BuildTarget]bool, len(builders))
	onStack := make(map[target.BuildTarget]bool)
	var path []target.BuildTarget

	var resolve func(b Builder) error
	resolve = func(b Builder) error {
		t := b.Target()
		if resolved[t] {
			return nil
		}
		if onStack[t] {
			return &graph.CycleError{Targets: append(cyclePath(path, t), t)}
		}
		onStack[t] = true
		path = append(path, t)

		for _, depTarget := range b.DepTargets() {
			dep, ok := byTarget[depTarget]
			if !ok {
				return &UnresolvedDependencyError{From: t, Missing: depTarget}
			}
			if err := resolve(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		delete(onStack, t)

		r, err := b.Build(ctx, g)
		if err != nil {
			return fmt.Errorf("build rule %s: %w", t, err)
		}
		if r.Target() != t {
			return fmt.Errorf("builder for %s produced rule %s", t, r.Target())
		}
		if err := g.AddRule(r); err != nil {
			return err
		}
		resolved[t] = true
		logger.Debug("Rule resolved.", "target", t.String(), "type", string(r.Type()))
		return nil
	}

	// Walk builders in their declared order so resolution order, and with
	// it any error reported first, is deterministic.
	for _, b := range builders {
		if err := resolve(b); err != nil {
			return nil, err
		}
	}

	logger.Debug("Resolution finished.", "rules", g.Size())
	return g, nil
}

func cyclePath(path []target.BuildTarget, t target.BuildTarget) []target.BuildTarget {
	for i, p := range path {
		if p == t {
			return append([]target.BuildTarget{}, path[i:]...)
		}
	}
	return append([]target.BuildTarget{}, path...)
}
