package rules

import (
	"context"
	"path"
	"path/filepath"

	"github.com/vk/quarry/internal/config"
	"github.com/vk/quarry/internal/graph"
	"github.com/vk/quarry/internal/rule"
	"github.com/vk/quarry/internal/rulekey"
	"github.com/vk/quarry/internal/step"
	"github.com/vk/quarry/internal/target"
)

// TypePrebuilt publishes a checked-in artifact as a rule output. Nothing is
// generated; the rule exists so other rules can depend on the file and so
// its content participates in rule keys.
const TypePrebuilt rule.Type = "prebuilt"

type prebuilt struct {
	rule.Core
	cfg Config
	src string
	out string
}

type prebuiltBuilder struct {
	spec *config.RuleSpec
	cfg  Config
	src  string
	out  string
}

func newPrebuiltBuilder(spec *config.RuleSpec, cfg Config) (*prebuiltBuilder, error) {
	f := newFields(spec)
	src, err := f.requiredString("src")
	if err != nil {
		return nil, err
	}
	out, err := f.optionalString("out", path.Base(src))
	if err != nil {
		return nil, err
	}
	if err := f.checkUnused(); err != nil {
		return nil, err
	}
	return &prebuiltBuilder{spec: spec, cfg: cfg, src: src, out: out}, nil
}

func (b *prebuiltBuilder) Target() target.BuildTarget       { return b.spec.Target }
func (b *prebuiltBuilder) DepTargets() []target.BuildTarget { return nil }

func (b *prebuiltBuilder) Build(ctx context.Context, g *graph.Graph) (rule.Rule, error) {
	input := filepath.Join(b.cfg.ruleDir(b.spec.Target), filepath.FromSlash(b.src))
	return &prebuilt{
		Core: rule.NewCore(b.spec.Target, TypePrebuilt, nil, []string{input}),
		cfg:  b.cfg,
		src:  b.src,
		out:  b.out,
	}, nil
}

func (r *prebuilt) AppendToRuleKey(b *rulekey.Builder) error {
	b.SetField("src", r.src).
		SetField("out", r.out)
	return nil
}

func (r *prebuilt) OutputPaths() []string {
	return []string{filepath.Join(r.cfg.outDir(r.Target()), r.out)}
}

func (r *prebuilt) Steps(ctx context.Context) ([]step.Step, error) {
	return []step.Step{
		&step.CopyFileStep{From: r.Inputs()[0], To: r.OutputPaths()[0]},
	}, nil
}
