// Package step defines the unit of executable work inside a build rule.
// The engine runs a rule's steps strictly in declared order and stops at the
// first failure.
package step

import (
	"context"
	"fmt"
)

// Step is one executable action. Execute must be side-effect free on failure
// with respect to other rules' outputs: a step only writes under its own
// rule's output locations.
type Step interface {
	// Description is a short human-readable form for logs and errors.
	Description() string
	// Execute performs the action, honoring cancellation via ctx.
	Execute(ctx context.Context) error
}

// ExecutionError wraps a failed step with its description so the engine can
// report which action inside a rule broke.
type ExecutionError struct {
	Step string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Run executes steps in order, wrapping the first failure in an
// *ExecutionError. It returns how many steps actually started, letting the
// engine account for work done even on failure. Cancellation is checked
// between steps so an aborted run never starts another action.
func Run(ctx context.Context, steps []Step) (int, error) {
	executed := 0
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return executed, err
		}
		executed++
		if err := s.Execute(ctx); err != nil {
			return executed, &ExecutionError{Step: s.Description(), Err: err}
		}
	}
	return executed, nil
}
