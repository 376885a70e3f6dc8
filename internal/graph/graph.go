// Package graph holds the immutable dependency graph the engine executes: a
// mapping from build target to rule plus the edge set induced by each rule's
// declared dependencies. Construction rejects cycles, duplicates and
// dangling references; after construction the graph is only queried.
package graph

import (
	"container/heap"
	"iter"
	"sort"
	"sync"

	"github.com/vk/quarry/internal/rule"
	"github.com/vk/quarry/internal/target"
)

// Graph is the dependency graph over build rules. A fresh graph is built for
// every invocation; nodes are never removed.
type Graph struct {
	mutex sync.RWMutex
	rules map[target.BuildTarget]rule.Rule
}

// New returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{rules: make(map[target.BuildTarget]rule.Rule)}
}

// AddRule registers a node. It fails with *DuplicateTargetError if the
// target is already present, *NotFoundError if a declared dependency has not
// been registered, and *CycleError if following the rule's dependency
// references reaches a rule twice. On any failure the graph is unchanged.
func (g *Graph) AddRule(r rule.Rule) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	t := r.Target()
	if _, exists := g.rules[t]; exists {
		return &DuplicateTargetError{Target: t}
	}
	if err := checkCycleFrom(r); err != nil {
		return err
	}
	for _, dep := range r.Deps() {
		if _, ok := g.rules[dep.Target()]; !ok {
			return &NotFoundError{Target: dep.Target()}
		}
	}
	g.rules[t] = r
	return nil
}

// checkCycleFrom runs a depth-first walk over dependency references starting
// at r. It follows rule instances rather than registered nodes, so a cycle
// among not-yet-registered rules is caught before anything is added.
func checkCycleFrom(r rule.Rule) error {
	// Classic three-state DFS: done nodes are known safe, onStack marks the
	// current path.
	done := make(map[target.BuildTarget]bool)
	onStack := make(map[target.BuildTarget]bool)
	var path []target.BuildTarget

	var visit func(n rule.Rule) *CycleError
	visit = func(n rule.Rule) *CycleError {
		t := n.Target()
		if done[t] {
			return nil
		}
		if onStack[t] {
			return &CycleError{Targets: append(pathFrom(path, t), t)}
		}
		onStack[t] = true
		path = append(path, t)
		for _, dep := range n.Deps() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		delete(onStack, t)
		done[t] = true
		return nil
	}

	if err := visit(r); err != nil {
		return err
	}
	return nil
}

// pathFrom trims the DFS path to start at the first occurrence of t.
func pathFrom(path []target.BuildTarget, t target.BuildTarget) []target.BuildTarget {
	for i, p := range path {
		if p == t {
			return append([]target.BuildTarget{}, path[i:]...)
		}
	}
	return append([]target.BuildTarget{}, path...)
}

// FindByTarget returns the rule registered for a target, or *NotFoundError.
func (g *Graph) FindByTarget(t target.BuildTarget) (rule.Rule, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	r, ok := g.rules[t]
	if !ok {
		return nil, &NotFoundError{Target: t}
	}
	return r, nil
}

// Size returns the number of registered rules.
func (g *Graph) Size() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.rules)
}

// Rules returns all registered rules sorted by target.
func (g *Graph) Rules() []rule.Rule {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	rules := make([]rule.Rule, 0, len(g.rules))
	for _, r := range g.rules {
		rules = append(rules, r)
	}
	sortRules(rules)
	return rules
}

// TransitiveClosure returns every rule reachable from roots by following
// dependency edges, sorted by target. The roots themselves are included. A
// rule for which stop returns true is included in the result but its own
// dependencies are not descended into; a nil stop descends everywhere.
// Packaging rules use the stop predicate to avoid crossing into a
// separately packaged sub-application.
func (g *Graph) TransitiveClosure(roots []rule.Rule, stop func(rule.Rule) bool) []rule.Rule {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	visited := make(map[target.BuildTarget]bool)
	var result []rule.Rule

	var visit func(r rule.Rule)
	visit = func(r rule.Rule) {
		if visited[r.Target()] {
			return
		}
		visited[r.Target()] = true
		result = append(result, r)
		if stop != nil && stop(r) {
			return
		}
		for _, dep := range r.Deps() {
			visit(dep)
		}
	}
	for _, r := range roots {
		visit(r)
	}

	sortRules(result)
	return result
}

// TopologicalOrder yields every rule after all of its dependencies. Ties
// between independent rules break by target lexical order, so dispatch order
// and build logs are reproducible across runs.
func (g *Graph) TopologicalOrder() iter.Seq[rule.Rule] {
	g.mutex.RLock()
	// Snapshot remaining-dependency counts and dependent edges.
	remaining := make(map[target.BuildTarget]int, len(g.rules))
	dependents := make(map[target.BuildTarget][]target.BuildTarget, len(g.rules))
	rules := make(map[target.BuildTarget]rule.Rule, len(g.rules))
	for t, r := range g.rules {
		rules[t] = r
		remaining[t] = len(r.Deps())
		for _, dep := range r.Deps() {
			dependents[dep.Target()] = append(dependents[dep.Target()], t)
		}
	}
	g.mutex.RUnlock()

	return func(yield func(rule.Rule) bool) {
		ready := &targetHeap{}
		heap.Init(ready)
		for t, n := range remaining {
			if n == 0 {
				heap.Push(ready, t)
			}
		}
		for ready.Len() > 0 {
			t := heap.Pop(ready).(target.BuildTarget)
			if !yield(rules[t]) {
				return
			}
			for _, dt := range dependents[t] {
				remaining[dt]--
				if remaining[dt] == 0 {
					heap.Push(ready, dt)
				}
			}
		}
	}
}

func sortRules(rules []rule.Rule) {
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Target().Less(rules[j].Target())
	})
}

// targetHeap is a min-heap of build targets in lexical order.
type targetHeap []target.BuildTarget

func (h targetHeap) Len() int           { return len(h) }
func (h targetHeap) Less(i, j int) bool { return h[i].Less(h[j]) }
func (h targetHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *targetHeap) Push(x any)        { *h = append(*h, x.(target.BuildTarget)) }
func (h *targetHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
