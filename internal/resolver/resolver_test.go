package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/quarry/internal/graph"
	"github.com/vk/quarry/internal/rule"
	"github.com/vk/quarry/internal/rulekey"
	"github.com/vk/quarry/internal/step"
	"github.com/vk/quarry/internal/target"
)

// plainRule is the minimal concrete rule used by resolver tests.
type plainRule struct {
	rule.Core
	installable bool
}

func (r *plainRule) AppendToRuleKey(b *rulekey.Builder) error       { return nil }
func (r *plainRule) Steps(ctx context.Context) ([]step.Step, error) { return nil, nil }
func (r *plainRule) OutputPaths() []string                          { return nil }

// testBuilder resolves its deps through the graph and optionally requires
// them to be marked installable.
type testBuilder struct {
	target              target.BuildTarget
	deps                []target.BuildTarget
	installable         bool
	requiresInstallable bool
	built               *int
}

func newBuilder(t string, deps ...string) *testBuilder {
	b := &testBuilder{target: target.MustParse(t)}
	for _, d := range deps {
		b.deps = append(b.deps, target.MustParse(d))
	}
	return b
}

func (b *testBuilder) Target() target.BuildTarget       { return b.target }
func (b *testBuilder) DepTargets() []target.BuildTarget { return b.deps }

func (b *testBuilder) Build(ctx context.Context, g *graph.Graph) (rule.Rule, error) {
	if b.built != nil {
		*b.built++
	}
	depRules := make([]rule.Rule, 0, len(b.deps))
	for _, dt := range b.deps {
		dep, err := g.FindByTarget(dt)
		if err != nil {
			return nil, err
		}
		if b.requiresInstallable && !dep.(*plainRule).installable {
			return nil, &TypeConstraintError{
				From:       b.target,
				Dependency: dt,
				Constraint: "an installable rule",
			}
		}
		depRules = append(depRules, dep)
	}
	return &plainRule{
		Core:        rule.NewCore(b.target, "plain", depRules, nil),
		installable: b.installable,
	}, nil
}

func TestResolve_LinksDependencies(t *testing.T) {
	builders := []Builder{
		// Deliberately listed dependents-first: resolution order must not
		// depend on input order.
		newBuilder("//a:top", "//a:mid"),
		newBuilder("//a:mid", "//a:leaf"),
		newBuilder("//a:leaf"),
	}

	g, err := Resolve(context.Background(), builders)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Size())

	top, err := g.FindByTarget(target.MustParse("//a:top"))
	require.NoError(t, err)
	require.Len(t, top.Deps(), 1)
	assert.Equal(t, "//a:mid", top.Deps()[0].Target().String())
}

func TestResolve_EachBuilderRunsOnce(t *testing.T) {
	var leafBuilds int
	leaf := newBuilder("//a:leaf")
	leaf.built = &leafBuilds

	builders := []Builder{
		leaf,
		newBuilder("//a:left", "//a:leaf"),
		newBuilder("//a:right", "//a:leaf"),
	}
	_, err := Resolve(context.Background(), builders)
	require.NoError(t, err)
	assert.Equal(t, 1, leafBuilds)
}

func TestResolve_UnresolvedDependency(t *testing.T) {
	builders := []Builder{newBuilder("//a:top", "//a:ghost")}

	_, err := Resolve(context.Background(), builders)
	var unresolved *UnresolvedDependencyError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "//a:top", unresolved.From.String())
	assert.Equal(t, "//a:ghost", unresolved.Missing.String())
}

func TestResolve_Cycle(t *testing.T) {
	builders := []Builder{
		newBuilder("//c:a", "//c:b"),
		newBuilder("//c:b", "//c:c"),
		newBuilder("//c:c", "//c:a"),
	}

	_, err := Resolve(context.Background(), builders)
	var cycle *graph.CycleError
	require.True(t, errors.As(err, &cycle))
}

func TestResolve_DuplicateTarget(t *testing.T) {
	builders := []Builder{newBuilder("//d:x"), newBuilder("//d:x")}

	_, err := Resolve(context.Background(), builders)
	var dup *graph.DuplicateTargetError
	require.True(t, errors.As(err, &dup))
}

func TestResolve_TypeConstraint(t *testing.T) {
	plain := newBuilder("//t:plain")

	wrapper := newBuilder("//t:wrapper", "//t:plain")
	wrapper.requiresInstallable = true

	_, err := Resolve(context.Background(), []Builder{plain, wrapper})
	var constraint *TypeConstraintError
	require.True(t, errors.As(err, &constraint))
	assert.Contains(t, constraint.Error(), "//t:wrapper")
	assert.Contains(t, constraint.Error(), "installable")

	t.Run("satisfied constraint resolves", func(t *testing.T) {
		installable := newBuilder("//t:pkg")
		installable.installable = true
		wrapper := newBuilder("//t:wrapper", "//t:pkg")
		wrapper.requiresInstallable = true

		g, err := Resolve(context.Background(), []Builder{installable, wrapper})
		require.NoError(t, err)
		assert.Equal(t, 2, g.Size())
	})
}
