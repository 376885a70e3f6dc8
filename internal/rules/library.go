package rules

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/quarry/internal/config"
	"github.com/vk/quarry/internal/fsutil"
	"github.com/vk/quarry/internal/graph"
	"github.com/vk/quarry/internal/rule"
	"github.com/vk/quarry/internal/rulekey"
	"github.com/vk/quarry/internal/step"
	"github.com/vk/quarry/internal/target"
)

// TypeLibrary stages a set of source files into the output tree, preserving
// their paths relative to the rule's directory.
const TypeLibrary rule.Type = "library"

type library struct {
	rule.Core
	cfg  Config
	srcs []string
}

type libraryBuilder struct {
	spec *config.RuleSpec
	cfg  Config
	srcs []string
	deps []target.BuildTarget
}

func newLibraryBuilder(spec *config.RuleSpec, cfg Config) (*libraryBuilder, error) {
	f := newFields(spec)
	srcs, err := f.stringList("srcs")
	if err != nil {
		return nil, err
	}
	if len(srcs) == 0 {
		return nil, fmt.Errorf("attribute %q must list at least one pattern", "srcs")
	}
	deps, err := f.targetList("deps")
	if err != nil {
		return nil, err
	}
	if err := f.checkUnused(); err != nil {
		return nil, err
	}
	return &libraryBuilder{spec: spec, cfg: cfg, srcs: srcs, deps: deps}, nil
}

func (b *libraryBuilder) Target() target.BuildTarget       { return b.spec.Target }
func (b *libraryBuilder) DepTargets() []target.BuildTarget { return b.deps }

func (b *libraryBuilder) Build(ctx context.Context, g *graph.Graph) (rule.Rule, error) {
	deps, err := depRules(g, b.deps)
	if err != nil {
		return nil, err
	}
	inputs, err := fsutil.Glob(b.cfg.ruleDir(b.spec.Target), b.srcs)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("srcs %v matched no files", b.srcs)
	}
	return &library{
		Core: rule.NewCore(b.spec.Target, TypeLibrary, deps, inputs),
		cfg:  b.cfg,
		srcs: b.srcs,
	}, nil
}

func (r *library) AppendToRuleKey(b *rulekey.Builder) error {
	b.SetField("srcs", r.srcs)
	return nil
}

func (r *library) OutputPaths() []string {
	ruleDir := r.cfg.ruleDir(r.Target())
	outDir := r.cfg.outDir(r.Target())
	outs := make([]string, len(r.Inputs()))
	for i, in := range r.Inputs() {
		rel, err := filepath.Rel(ruleDir, in)
		if err != nil {
			// Inputs come from globbing ruleDir, so they are always below it.
			panic(err)
		}
		outs[i] = filepath.Join(outDir, rel)
	}
	return outs
}

func (r *library) Steps(ctx context.Context) ([]step.Step, error) {
	outs := r.OutputPaths()
	steps := make([]step.Step, len(outs))
	for i, in := range r.Inputs() {
		steps[i] = &step.CopyFileStep{From: in, To: outs[i]}
	}
	return steps, nil
}
