package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/quarry/internal/config"
	"github.com/vk/quarry/internal/fsutil"
	"github.com/vk/quarry/internal/graph"
	"github.com/vk/quarry/internal/rule"
	"github.com/vk/quarry/internal/rulekey"
	"github.com/vk/quarry/internal/step"
	"github.com/vk/quarry/internal/target"
)

// TypeGenrule runs a user command to produce a single output file.
const TypeGenrule rule.Type = "genrule"

// genrule executes a shell-style command in the rule's source directory.
// The command sees its output path, its expanded sources and the output
// directory through QUARRY_* environment variables.
type genrule struct {
	rule.Core
	cfg  Config
	cmd  string
	out  string
	srcs []string
}

type genruleBuilder struct {
	spec *config.RuleSpec
	cfg  Config
	cmd  string
	out  string
	srcs []string
	deps []target.BuildTarget
}

func newGenruleBuilder(spec *config.RuleSpec, cfg Config) (*genruleBuilder, error) {
	f := newFields(spec)
	cmd, err := f.requiredString("cmd")
	if err != nil {
		return nil, err
	}
	out, err := f.requiredString("out")
	if err != nil {
		return nil, err
	}
	srcs, err := f.stringList("srcs")
	if err != nil {
		return nil, err
	}
	deps, err := f.targetList("deps")
	if err != nil {
		return nil, err
	}
	if err := f.checkUnused(); err != nil {
		return nil, err
	}
	return &genruleBuilder{spec: spec, cfg: cfg, cmd: cmd, out: out, srcs: srcs, deps: deps}, nil
}

func (b *genruleBuilder) Target() target.BuildTarget       { return b.spec.Target }
func (b *genruleBuilder) DepTargets() []target.BuildTarget { return b.deps }

func (b *genruleBuilder) Build(ctx context.Context, g *graph.Graph) (rule.Rule, error) {
	deps, err := depRules(g, b.deps)
	if err != nil {
		return nil, err
	}
	inputs, err := fsutil.Glob(b.cfg.ruleDir(b.spec.Target), b.srcs)
	if err != nil {
		return nil, err
	}
	return &genrule{
		Core: rule.NewCore(b.spec.Target, TypeGenrule, deps, inputs),
		cfg:  b.cfg,
		cmd:  b.cmd,
		out:  b.out,
		srcs: b.srcs,
	}, nil
}

func (r *genrule) AppendToRuleKey(b *rulekey.Builder) error {
	b.SetField("cmd", r.cmd).
		SetField("out", r.out).
		SetField("srcs", r.srcs)
	return nil
}

func (r *genrule) OutputPaths() []string {
	return []string{filepath.Join(r.cfg.outDir(r.Target()), filepath.FromSlash(r.out))}
}

func (r *genrule) Steps(ctx context.Context) ([]step.Step, error) {
	outPath, err := filepath.Abs(r.OutputPaths()[0])
	if err != nil {
		return nil, err
	}
	srcs := make([]string, len(r.Inputs()))
	for i, in := range r.Inputs() {
		if srcs[i], err = filepath.Abs(in); err != nil {
			return nil, err
		}
	}
	return []step.Step{
		&step.MkdirStep{Path: filepath.Dir(outPath)},
		&step.CommandStep{
			Cmd: r.cmd,
			Dir: r.cfg.ruleDir(r.Target()),
			Env: []string{
				"QUARRY_OUT=" + outPath,
				"QUARRY_OUT_DIR=" + filepath.Dir(outPath),
				"QUARRY_SRCS=" + strings.Join(srcs, " "),
			},
		},
	}, nil
}

// depRules looks up every declared dependency in the resolved graph.
// Resolution registers dependencies before dependents, so a miss here is a
// programming error rather than a user one.
func depRules(g *graph.Graph, targets []target.BuildTarget) ([]rule.Rule, error) {
	deps := make([]rule.Rule, len(targets))
	for i, t := range targets {
		r, err := g.FindByTarget(t)
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", t, err)
		}
		deps[i] = r
	}
	return deps, nil
}
