// Package rule defines the build-rule node model and the capability
// interfaces the engine depends on. Concrete rule kinds live outside the
// core; the engine only sees a Rule's field contributions, its ordered steps
// and its declared outputs.
package rule

import (
	"context"

	"github.com/vk/quarry/internal/rulekey"
	"github.com/vk/quarry/internal/step"
	"github.com/vk/quarry/internal/target"
)

// Type tags the kind of a rule (e.g. "genrule", "library", "package").
type Type string

// Rule is one node in the dependency graph. Implementations are immutable
// after construction except for the memoized derived values managed by the
// embedded Core.
type Rule interface {
	// Target is the rule's identity.
	Target() target.BuildTarget
	// Type distinguishes the rule's kind and is the first rule-key
	// contribution.
	Type() Type
	// Deps returns the resolved dependency rules in declared order, unique
	// by target. The order is part of the rule-key contract.
	Deps() []Rule
	// Inputs returns the declared input file paths in declared order.
	Inputs() []string
	// AppendToRuleKey adds the rule kind's field contributions to an
	// in-progress key computation. Implementations must contribute fields
	// in a stable declaration order.
	AppendToRuleKey(b *rulekey.Builder) error
	// Steps produces the ordered build actions. It is called only after
	// every dependency has reached a terminal success state, so dependency
	// outputs may be read to assemble the steps.
	Steps(ctx context.Context) ([]step.Step, error)
	// OutputPaths lists the files a successful build leaves behind, in a
	// stable order. It must be computable without running the steps.
	OutputPaths() []string
	// KeyCell exposes the rule's once-computed rule key cell to the engine.
	KeyCell() *KeyCell
}

// Installable marks a rule whose output is a deployable package with an
// embedded manifest. Install tooling consumes this capability; the core only
// defines it and the resolver checks it where a rule kind requires it.
type Installable interface {
	Rule
	// PackagePath is the path to the deployable archive after a successful
	// build.
	PackagePath() string
	// ReadManifest reads the manifest embedded in the built package.
	ReadManifest() (map[string]string, error)
}

// Core carries the state every rule shares: identity, declared dependencies,
// declared inputs and the memoized rule key. Rule kinds embed it and supply
// the behavioral methods themselves.
type Core struct {
	target target.BuildTarget
	typ    Type
	deps   []Rule
	inputs []string
	key    KeyCell
}

// NewCore constructs the shared rule state. Dependencies are deduplicated by
// target, keeping the first occurrence so declared order is preserved.
func NewCore(t target.BuildTarget, typ Type, deps []Rule, inputs []string) Core {
	seen := make(map[target.BuildTarget]bool, len(deps))
	unique := make([]Rule, 0, len(deps))
	for _, d := range deps {
		if seen[d.Target()] {
			continue
		}
		seen[d.Target()] = true
		unique = append(unique, d)
	}
	return Core{target: t, typ: typ, deps: unique, inputs: inputs}
}

func (c *Core) Target() target.BuildTarget { return c.target }
func (c *Core) Type() Type                 { return c.typ }
func (c *Core) Deps() []Rule               { return c.deps }
func (c *Core) Inputs() []string           { return c.inputs }
func (c *Core) KeyCell() *KeyCell          { return &c.key }
