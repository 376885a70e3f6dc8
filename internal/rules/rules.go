// Package rules implements the concrete rule kinds and their resolver
// builders. Each kind owns its field schema: it decodes its attributes from
// the rule spec, expands source globs at resolution time, and emits the
// steps that produce its declared outputs.
package rules

import (
	"fmt"
	"path/filepath"

	"github.com/vk/quarry/internal/config"
	"github.com/vk/quarry/internal/resolver"
	"github.com/vk/quarry/internal/target"
)

// Config locates a project on disk.
type Config struct {
	// RootDir is the project root all build-file paths are relative to.
	RootDir string
	// OutDir is the directory rule outputs are written under, mirroring
	// each rule's base path.
	OutDir string
}

// ruleDir is the on-disk directory a rule's sources live in.
func (c Config) ruleDir(t target.BuildTarget) string {
	return filepath.Join(c.RootDir, filepath.FromSlash(t.BasePath))
}

// outDir is the on-disk directory a rule's outputs are written to.
func (c Config) outDir(t target.BuildTarget) string {
	return filepath.Join(c.OutDir, filepath.FromSlash(t.BasePath))
}

// Builders translates every rule spec in the model into a resolver builder.
// Unknown kinds are rejected here rather than at the schema layer so that a
// model produced by any front end gets the same validation.
func Builders(model *config.Model, cfg Config) ([]resolver.Builder, error) {
	builders := make([]resolver.Builder, 0, len(model.Specs))
	for _, spec := range model.Specs {
		b, err := builderFor(spec, cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", spec.File, spec.Target, err)
		}
		builders = append(builders, b)
	}
	return builders, nil
}

func builderFor(spec *config.RuleSpec, cfg Config) (resolver.Builder, error) {
	switch spec.Kind {
	case "genrule":
		return newGenruleBuilder(spec, cfg)
	case "library":
		return newLibraryBuilder(spec, cfg)
	case "prebuilt":
		return newPrebuiltBuilder(spec, cfg)
	case "package":
		return newPackageBuilder(spec, cfg)
	case "package_genrule":
		return newPackageGenruleBuilder(spec, cfg)
	default:
		return nil, fmt.Errorf("unknown rule kind %q", spec.Kind)
	}
}
