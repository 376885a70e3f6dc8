package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vk/quarry/internal/rulekey"
	"github.com/vk/quarry/internal/target"
)

// BlockedError marks a rule that was never attempted because a dependency
// failed. It is distinct from the originating failure so reports can
// separate root causes from fallout.
type BlockedError struct {
	Target target.BuildTarget
	Cause  target.BuildTarget
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s not attempted: dependency %s failed", e.Target, e.Cause)
}

// StepExecutionError wraps a failing build step with the rule it belongs to.
type StepExecutionError struct {
	Target target.BuildTarget
	Err    error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("build %s: %v", e.Target, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// Outcome is one rule's terminal record for a run.
type Outcome struct {
	Target target.BuildTarget
	State  State
	// Key is the rule key the outcome was decided under. Unset for Blocked
	// rules and for rules whose key computation itself failed.
	Key rulekey.Key
	// Err is the originating cause for Failed, or a *BlockedError for
	// Blocked. Nil on success.
	Err error
}

// Result aggregates a whole engine run.
type Result struct {
	// BuildID uniquely identifies the run.
	BuildID  string
	Outcomes map[target.BuildTarget]*Outcome
	// StepsExecuted counts build steps actually run; zero on a fully warm
	// build.
	StepsExecuted int
}

// Success reports whether every rule reached Built or Reused.
func (r *Result) Success() bool {
	for _, o := range r.Outcomes {
		if !o.State.Success() {
			return false
		}
	}
	return true
}

// ExitCode maps the run onto a process exit status: 0 on success, 1 if any
// rule failed or was blocked.
func (r *Result) ExitCode() int {
	if r.Success() {
		return 0
	}
	return 1
}

// Sorted returns outcomes in target order for stable reporting.
func (r *Result) Sorted() []*Outcome {
	out := make([]*Outcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Target.Less(out[j].Target)
	})
	return out
}

// FirstFailure returns the first Failed outcome in target order, or nil.
// Blocked outcomes are never root causes, and neither are rules killed by
// the run-level cancellation: under fail-fast, in-flight bystanders finish
// Failed with context.Canceled, and naming one of those would hide the rule
// whose failure triggered the cancellation.
func (r *Result) FirstFailure() *Outcome {
	for _, o := range r.Sorted() {
		if o.State == Failed && !errors.Is(o.Err, context.Canceled) {
			return o
		}
	}
	return nil
}
