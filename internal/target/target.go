// Package target defines BuildTarget, the immutable identifier naming one
// node in the build graph. A target is written as "//base/path:name" with an
// optional "#flavor" suffix, e.g. "//lib/util:strings#stripped".
package target

import (
	"fmt"
	"strings"
)

// BuildTarget names a single build rule. It is a comparable value type and
// is used as a map key throughout the graph, resolver and engine.
type BuildTarget struct {
	// BasePath is the slash-separated, root-relative namespace path,
	// without the leading "//".
	BasePath string
	// ShortName is the rule's name within its base path.
	ShortName string
	// Flavor is an optional variant suffix. Empty means the unflavored rule.
	Flavor string
}

// Parse converts the canonical "//base/path:name#flavor" form into a
// BuildTarget. The base path may be empty ("//:name" is the repo root).
func Parse(s string) (BuildTarget, error) {
	if !strings.HasPrefix(s, "//") {
		return BuildTarget{}, fmt.Errorf("build target %q must start with //", s)
	}
	rest := s[2:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return BuildTarget{}, fmt.Errorf("build target %q has no :name part", s)
	}
	basePath := rest[:colon]
	name := rest[colon+1:]
	var flavor string
	if hash := strings.IndexByte(name, '#'); hash >= 0 {
		name, flavor = name[:hash], name[hash+1:]
		if flavor == "" {
			return BuildTarget{}, fmt.Errorf("build target %q has an empty flavor", s)
		}
	}
	if name == "" {
		return BuildTarget{}, fmt.Errorf("build target %q has an empty name", s)
	}
	if strings.HasPrefix(basePath, "/") || strings.HasSuffix(basePath, "/") {
		return BuildTarget{}, fmt.Errorf("build target %q has a malformed base path", s)
	}
	return BuildTarget{BasePath: basePath, ShortName: name, Flavor: flavor}, nil
}

// MustParse is Parse for compile-time-constant targets in tests and wiring.
func MustParse(s string) BuildTarget {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String renders the canonical "//base/path:name#flavor" form.
func (t BuildTarget) String() string {
	var b strings.Builder
	b.WriteString("//")
	b.WriteString(t.BasePath)
	b.WriteByte(':')
	b.WriteString(t.ShortName)
	if t.Flavor != "" {
		b.WriteByte('#')
		b.WriteString(t.Flavor)
	}
	return b.String()
}

// Less orders targets lexically by their canonical form. The graph uses it
// as the deterministic tie-break for topological ordering.
func (t BuildTarget) Less(other BuildTarget) bool {
	return t.String() < other.String()
}
