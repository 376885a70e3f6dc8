package config

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/quarry/internal/target"
)

// Model is the ordered collection of rule specifications parsed from a
// project's build files.
type Model struct {
	Specs []*RuleSpec
}

// RuleSpec is one declared rule awaiting resolution: its target, its kind
// tag, and the kind-specific field values. Dependency references live inside
// Fields; each rule kind knows which of its fields name targets.
type RuleSpec struct {
	// Target is the rule's identity, derived from the build file's
	// directory and the block's name label.
	Target target.BuildTarget
	// Kind tags the rule type ("genrule", "library", "prebuilt",
	// "package", "package_genrule").
	Kind string
	// Fields holds the block's attributes as evaluated values, keyed by
	// attribute name.
	Fields map[string]cty.Value
	// File is the build file the spec came from, for error messages.
	File string
}
