// Package hcl is the HCL front end for build files. It discovers BUILD.hcl
// files under a project root, parses them, and translates their blocks into
// the format-agnostic config model consumed by the rule kinds and the
// resolver.
package hcl

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/quarry/internal/config"
	"github.com/vk/quarry/internal/ctxlog"
	"github.com/vk/quarry/internal/fsutil"
	"github.com/vk/quarry/internal/schema"
	"github.com/vk/quarry/internal/target"
)

// BuildFileName is the file the loader looks for in every package directory.
const BuildFileName = "BUILD.hcl"

// Loader parses BUILD.hcl files into the config model.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a Loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// Load walks rootDir for BUILD.hcl files and translates every rule block.
// Specs keep file order within a build file and sorted file order across
// files, so the model is deterministic for a given tree.
func (l *Loader) Load(ctx context.Context, rootDir string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindFilesByName(rootDir, BuildFileName)
	if err != nil {
		return nil, fmt.Errorf("scan %s for build files: %w", rootDir, err)
	}
	logger.Debug("Build file scan finished.", "root", rootDir, "files", len(files))

	model := &config.Model{}
	for _, file := range files {
		specs, err := l.loadFile(rootDir, file)
		if err != nil {
			return nil, err
		}
		model.Specs = append(model.Specs, specs...)
	}
	logger.Debug("Build files loaded.", "specs", len(model.Specs))
	return model, nil
}

func (l *Loader) loadFile(rootDir, file string) ([]*config.RuleSpec, error) {
	hclFile, diags := l.parser.ParseHCLFile(file)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", file, diags)
	}

	relDir, err := filepath.Rel(rootDir, filepath.Dir(file))
	if err != nil {
		return nil, err
	}
	basePath := filepath.ToSlash(relDir)
	if basePath == "." {
		basePath = ""
	}

	content, diags := hclFile.Body.Content(schema.BuildFile)
	if diags.HasErrors() {
		return nil, fmt.Errorf("read %s: %w", file, diags)
	}

	specs := make([]*config.RuleSpec, 0, len(content.Blocks))
	for _, block := range content.Blocks {
		spec, err := translateBlock(block, basePath, file)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// translateBlock evaluates a rule block's attributes into the spec's field
// map. Build files are static declarations: expressions may use literals
// and HCL's built-in constructs but no cross-rule references, so they
// evaluate against an empty context.
func translateBlock(block *hcl.Block, basePath, file string) (*config.RuleSpec, error) {
	name := block.Labels[0]
	t := target.BuildTarget{BasePath: basePath, ShortName: name}
	if _, err := target.Parse(t.String()); err != nil {
		return nil, fmt.Errorf("%s: rule %q: %w", file, name, err)
	}

	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: rule %q: %w", file, name, diags)
	}

	spec := &config.RuleSpec{
		Target: t,
		Kind:   block.Type,
		Fields: make(map[string]cty.Value, len(attrs)),
		File:   file,
	}
	// hcl attribute maps are unordered; evaluation order does not matter
	// because expressions are context-free.
	for attrName, attr := range attrs {
		value, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s: rule %q: attribute %q: %w", file, name, attrName, diags)
		}
		spec.Fields[attrName] = value
	}
	return spec, nil
}
