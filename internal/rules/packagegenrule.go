package rules

import (
	"context"
	"path/filepath"

	"github.com/vk/quarry/internal/config"
	"github.com/vk/quarry/internal/graph"
	"github.com/vk/quarry/internal/resolver"
	"github.com/vk/quarry/internal/rule"
	"github.com/vk/quarry/internal/rulekey"
	"github.com/vk/quarry/internal/step"
	"github.com/vk/quarry/internal/target"
)

// TypePackageGenrule transforms a finished package with a user command. The
// result is itself installable: it advertises its own archive while
// inheriting the manifest of the package it was derived from, so install
// tooling treats a post-processed package exactly like the original.
const TypePackageGenrule rule.Type = "package_genrule"

type packageGenrule struct {
	rule.Core
	cfg    Config
	cmd    string
	out    string
	source rule.Installable
}

type packageGenruleBuilder struct {
	spec   *config.RuleSpec
	cfg    Config
	cmd    string
	out    string
	source target.BuildTarget
}

func newPackageGenruleBuilder(spec *config.RuleSpec, cfg Config) (*packageGenruleBuilder, error) {
	f := newFields(spec)
	cmd, err := f.requiredString("cmd")
	if err != nil {
		return nil, err
	}
	out, err := f.requiredString("out")
	if err != nil {
		return nil, err
	}
	source, err := f.targetField("package")
	if err != nil {
		return nil, err
	}
	if err := f.checkUnused(); err != nil {
		return nil, err
	}
	return &packageGenruleBuilder{spec: spec, cfg: cfg, cmd: cmd, out: out, source: source}, nil
}

func (b *packageGenruleBuilder) Target() target.BuildTarget { return b.spec.Target }

func (b *packageGenruleBuilder) DepTargets() []target.BuildTarget {
	return []target.BuildTarget{b.source}
}

func (b *packageGenruleBuilder) Build(ctx context.Context, g *graph.Graph) (rule.Rule, error) {
	dep, err := g.FindByTarget(b.source)
	if err != nil {
		return nil, err
	}
	source, ok := dep.(rule.Installable)
	if !ok {
		return nil, &resolver.TypeConstraintError{
			From:       b.spec.Target,
			Dependency: b.source,
			Constraint: "an installable package",
		}
	}
	return &packageGenrule{
		Core:   rule.NewCore(b.spec.Target, TypePackageGenrule, []rule.Rule{dep}, nil),
		cfg:    b.cfg,
		cmd:    b.cmd,
		out:    b.out,
		source: source,
	}, nil
}

func (r *packageGenrule) AppendToRuleKey(b *rulekey.Builder) error {
	b.SetField("cmd", r.cmd).
		SetField("out", r.out).
		SetField("package", r.source.Target().String())
	return nil
}

func (r *packageGenrule) OutputPaths() []string {
	return []string{r.PackagePath()}
}

// PackagePath is the transformed archive this rule produces.
func (r *packageGenrule) PackagePath() string {
	return filepath.Join(r.cfg.outDir(r.Target()), filepath.FromSlash(r.out))
}

// ReadManifest reports the manifest of the source package. The transform
// rewrites the archive, not its identity.
func (r *packageGenrule) ReadManifest() (map[string]string, error) {
	return r.source.ReadManifest()
}

func (r *packageGenrule) Steps(ctx context.Context) ([]step.Step, error) {
	outPath, err := filepath.Abs(r.PackagePath())
	if err != nil {
		return nil, err
	}
	sourcePath, err := filepath.Abs(r.source.PackagePath())
	if err != nil {
		return nil, err
	}
	return []step.Step{
		&step.MkdirStep{Path: filepath.Dir(outPath)},
		&step.CommandStep{
			Cmd: r.cmd,
			Dir: r.cfg.ruleDir(r.Target()),
			Env: []string{
				"QUARRY_OUT=" + outPath,
				"QUARRY_PACKAGE=" + sourcePath,
			},
		},
	}, nil
}
