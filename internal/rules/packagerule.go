package rules

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/vk/quarry/internal/config"
	"github.com/vk/quarry/internal/graph"
	"github.com/vk/quarry/internal/rule"
	"github.com/vk/quarry/internal/rulekey"
	"github.com/vk/quarry/internal/step"
	"github.com/vk/quarry/internal/target"
)

// TypePackage bundles the outputs of a dependency closure into a single
// deployable zip archive with an embedded manifest.
const TypePackage rule.Type = "package"

// manifestName is the archive entry holding the package manifest.
const manifestName = "manifest.json"

// packageRule archives the outputs of every rule reachable from its declared
// dependencies. The walk stops at installable rules: a nested package goes
// into the archive as its finished artifact, not as its exploded contents.
type packageRule struct {
	rule.Core
	cfg      Config
	contents []rule.Rule
	meta     map[string]string
}

type packageBuilder struct {
	spec *config.RuleSpec
	cfg  Config
	meta map[string]string
	deps []target.BuildTarget
}

func newPackageBuilder(spec *config.RuleSpec, cfg Config) (*packageBuilder, error) {
	f := newFields(spec)
	deps, err := f.targetList("deps")
	if err != nil {
		return nil, err
	}
	if len(deps) == 0 {
		return nil, fmt.Errorf("attribute %q must list at least one target", "deps")
	}
	meta, err := f.stringMap("meta")
	if err != nil {
		return nil, err
	}
	if err := f.checkUnused(); err != nil {
		return nil, err
	}
	return &packageBuilder{spec: spec, cfg: cfg, meta: meta, deps: deps}, nil
}

func (b *packageBuilder) Target() target.BuildTarget       { return b.spec.Target }
func (b *packageBuilder) DepTargets() []target.BuildTarget { return b.deps }

func (b *packageBuilder) Build(ctx context.Context, g *graph.Graph) (rule.Rule, error) {
	deps, err := depRules(g, b.deps)
	if err != nil {
		return nil, err
	}
	contents := g.TransitiveClosure(deps, func(r rule.Rule) bool {
		_, installable := r.(rule.Installable)
		return installable
	})
	return &packageRule{
		Core:     rule.NewCore(b.spec.Target, TypePackage, deps, nil),
		cfg:      b.cfg,
		contents: contents,
		meta:     b.meta,
	}, nil
}

func (r *packageRule) AppendToRuleKey(b *rulekey.Builder) error {
	b.SetField("meta", r.meta)
	return nil
}

func (r *packageRule) OutputPaths() []string {
	return []string{r.PackagePath()}
}

// PackagePath is the finished archive, named after the rule.
func (r *packageRule) PackagePath() string {
	return filepath.Join(r.cfg.outDir(r.Target()), r.Target().ShortName+".qpkg")
}

func (r *packageRule) Steps(ctx context.Context) ([]step.Step, error) {
	files := make(map[string]string)
	for _, content := range r.contents {
		for _, out := range content.OutputPaths() {
			rel, err := filepath.Rel(r.cfg.OutDir, out)
			if err != nil {
				return nil, fmt.Errorf("output %s is outside the output tree: %w", out, err)
			}
			files[filepath.ToSlash(rel)] = out
		}
	}

	manifest, err := json.MarshalIndent(r.manifest(), "", "  ")
	if err != nil {
		return nil, err
	}
	return []step.Step{
		&step.ZipStep{
			Out:   r.PackagePath(),
			Files: files,
			Extra: map[string][]byte{manifestName: manifest},
		},
	}, nil
}

// manifest merges the declared metadata with the package's identity. User
// keys win on collision so builds can override the defaults.
func (r *packageRule) manifest() map[string]string {
	m := map[string]string{"quarry.target": r.Target().String()}
	for k, v := range r.meta {
		m[k] = v
	}
	return m
}

// ReadManifest opens the built archive and decodes its manifest entry.
func (r *packageRule) ReadManifest() (map[string]string, error) {
	return readManifest(r.PackagePath())
}

func readManifest(packagePath string) (map[string]string, error) {
	zr, err := zip.OpenReader(packagePath)
	if err != nil {
		return nil, fmt.Errorf("open package %s: %w", packagePath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != manifestName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s in %s: %w", manifestName, packagePath, err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("package %s has no %s", packagePath, manifestName)
}
