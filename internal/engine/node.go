package engine

import (
	"sync"
	"sync/atomic"

	"github.com/vk/quarry/internal/rule"
	"github.com/vk/quarry/internal/rulekey"
)

// node wraps one rule with the engine's per-run scheduling state.
type node struct {
	rule rule.Rule

	// depCount is the number of dependencies not yet in a terminal success
	// state; the node enters the ready queue when it hits zero.
	depCount atomic.Int32
	// dependents are the nodes waiting on this one, in target order.
	dependents []*node

	// state is the node's lifecycle state, stored atomically so the
	// aggregating goroutine can read while workers write.
	state atomic.Int32
	// finishOnce guarantees exactly one terminal transition (and exactly
	// one completion signal) even when a cancelled worker and a failure
	// cascade race for the same node.
	finishOnce sync.Once

	// key and err are written once by the worker holding the node and read
	// after the node is terminal.
	key rulekey.Key
	err error
}

func (n *node) currentState() State {
	return State(n.state.Load())
}

// finish moves the node to a terminal state exactly once and reports whether
// this call was the one that did it.
func (n *node) finish(s State, err error) bool {
	won := false
	n.finishOnce.Do(func() {
		n.err = err
		n.state.Store(int32(s))
		won = true
	})
	return won
}
