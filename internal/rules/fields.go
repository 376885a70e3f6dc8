package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/quarry/internal/config"
	"github.com/vk/quarry/internal/target"
)

// fields wraps a spec's attribute map with typed, error-reporting accessors.
// Accessors record which fields were read so unknown attributes can be
// rejected once the kind has pulled everything it understands.
type fields struct {
	spec *config.RuleSpec
	used map[string]bool
}

func newFields(spec *config.RuleSpec) *fields {
	return &fields{spec: spec, used: make(map[string]bool, len(spec.Fields))}
}

func (f *fields) lookup(name string) (cty.Value, bool) {
	f.used[name] = true
	v, ok := f.spec.Fields[name]
	return v, ok
}

// requiredString reads a mandatory string attribute.
func (f *fields) requiredString(name string) (string, error) {
	v, ok := f.lookup(name)
	if !ok {
		return "", fmt.Errorf("missing required attribute %q", name)
	}
	return f.asString(name, v)
}

// optionalString reads a string attribute, returning fallback when absent.
func (f *fields) optionalString(name, fallback string) (string, error) {
	v, ok := f.lookup(name)
	if !ok {
		return fallback, nil
	}
	return f.asString(name, v)
}

// stringList reads an optional list-of-strings attribute. Absent means
// empty.
func (f *fields) stringList(name string) ([]string, error) {
	v, ok := f.lookup(name)
	if !ok {
		return nil, nil
	}
	converted, err := convert.Convert(v, cty.List(cty.String))
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", name, err)
	}
	var out []string
	for it := converted.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		if elem.IsNull() {
			return nil, fmt.Errorf("attribute %q: null element", name)
		}
		out = append(out, elem.AsString())
	}
	return out, nil
}

// stringMap reads an optional string-to-string map attribute. Absent means
// empty.
func (f *fields) stringMap(name string) (map[string]string, error) {
	v, ok := f.lookup(name)
	if !ok {
		return nil, nil
	}
	converted, err := convert.Convert(v, cty.Map(cty.String))
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", name, err)
	}
	out := make(map[string]string)
	for it := converted.ElementIterator(); it.Next(); {
		k, elem := it.Element()
		if elem.IsNull() {
			return nil, fmt.Errorf("attribute %q: null value for key %q", name, k.AsString())
		}
		out[k.AsString()] = elem.AsString()
	}
	return out, nil
}

func (f *fields) asString(name string, v cty.Value) (string, error) {
	converted, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("attribute %q: %w", name, err)
	}
	if converted.IsNull() {
		return "", fmt.Errorf("attribute %q is null", name)
	}
	return converted.AsString(), nil
}

// checkUnused fails on attributes no accessor consumed, so a typoed field
// name surfaces instead of silently dropping out of the rule key.
func (f *fields) checkUnused() error {
	var unknown []string
	for name := range f.spec.Fields {
		if !f.used[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("unknown attributes: %s", strings.Join(unknown, ", "))
}

// targetField reads a mandatory attribute naming a single target.
func (f *fields) targetField(name string) (target.BuildTarget, error) {
	s, err := f.requiredString(name)
	if err != nil {
		return target.BuildTarget{}, err
	}
	t, err := parseTargetRef(s, f.spec.Target.BasePath)
	if err != nil {
		return target.BuildTarget{}, fmt.Errorf("attribute %q: %w", name, err)
	}
	return t, nil
}

// targetList reads an optional attribute naming a list of targets.
func (f *fields) targetList(name string) ([]target.BuildTarget, error) {
	refs, err := f.stringList(name)
	if err != nil {
		return nil, err
	}
	targets := make([]target.BuildTarget, 0, len(refs))
	for _, ref := range refs {
		t, err := parseTargetRef(ref, f.spec.Target.BasePath)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// parseTargetRef resolves a target reference as written in a build file.
// ":name" is shorthand for a rule in the same build file; "//path:name" is
// the absolute form.
func parseTargetRef(ref, basePath string) (target.BuildTarget, error) {
	if strings.HasPrefix(ref, ":") {
		ref = "//" + basePath + ref
	}
	return target.Parse(ref)
}
