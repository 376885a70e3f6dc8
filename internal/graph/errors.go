package graph

import (
	"fmt"
	"strings"

	"github.com/vk/quarry/internal/target"
)

// CycleError reports a dependency cycle discovered while registering a rule.
// Targets holds the cycle path in traversal order, first node repeated last.
type CycleError struct {
	Targets []target.BuildTarget
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Targets))
	for i, t := range e.Targets {
		parts[i] = t.String()
	}
	return fmt.Sprintf("dependency cycle: %s", strings.Join(parts, " -> "))
}

// DuplicateTargetError reports a second rule registered under an existing
// target.
type DuplicateTargetError struct {
	Target target.BuildTarget
}

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("duplicate build target %s", e.Target)
}

// NotFoundError reports a lookup of a target absent from the graph.
type NotFoundError struct {
	Target target.BuildTarget
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no rule for build target %s", e.Target)
}
