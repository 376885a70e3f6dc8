// Package schema declares the shape of BUILD.hcl files: which block types
// exist and what labels they carry. Attribute-level validation belongs to
// the rule kinds, which know their own fields.
package schema

import "github.com/hashicorp/hcl/v2"

// RuleKinds lists every block type a build file may contain. The block type
// is the rule's kind tag.
var RuleKinds = []string{
	"genrule",
	"library",
	"prebuilt",
	"package",
	"package_genrule",
}

// BuildFile is the body schema for one BUILD.hcl file: a sequence of rule
// blocks, each carrying a single name label.
var BuildFile = buildFileSchema()

func buildFileSchema() *hcl.BodySchema {
	s := &hcl.BodySchema{}
	for _, kind := range RuleKinds {
		s.Blocks = append(s.Blocks, hcl.BlockHeaderSchema{
			Type:       kind,
			LabelNames: []string{"name"},
		})
	}
	return s
}
