package rulekey

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuild_Deterministic(t *testing.T) {
	files := NewFileHasher()
	build := func() Key {
		b := NewBuilder("genrule", files)
		b.SetField("cmd", "echo hi > $OUT")
		b.SetField("out", "hi.txt")
		return b.Build()
	}
	assert.Equal(t, build(), build())
}

func TestBuild_Idempotent(t *testing.T) {
	b := NewBuilder("genrule", NewFileHasher())
	b.SetField("cmd", "true")
	first := b.Build()
	second := b.Build()
	assert.Equal(t, first, second)
}

func TestFieldOrderMatters(t *testing.T) {
	files := NewFileHasher()

	a := NewBuilder("r", files).SetField("x", "1").SetField("y", "2").Build()
	b := NewBuilder("r", files).SetField("y", "2").SetField("x", "1").Build()
	assert.NotEqual(t, a, b)
}

func TestTypeTagMatters(t *testing.T) {
	files := NewFileHasher()
	a := NewBuilder("genrule", files).SetField("x", "1").Build()
	b := NewBuilder("library", files).SetField("x", "1").Build()
	assert.NotEqual(t, a, b)
}

func TestAdjacentValuesCannotRunTogether(t *testing.T) {
	files := NewFileHasher()
	// ("ab", "c") must not collide with ("a", "bc").
	a := NewBuilder("r", files).SetField("f", "ab").SetField("g", "c").Build()
	b := NewBuilder("r", files).SetField("f", "a").SetField("g", "bc").Build()
	assert.NotEqual(t, a, b)
}

func TestSetField_MapIsOrderInsensitive(t *testing.T) {
	files := NewFileHasher()
	m1 := map[string]string{"a": "1", "b": "2", "c": "3"}
	m2 := map[string]string{"c": "3", "a": "1", "b": "2"}
	a := NewBuilder("r", files).SetField("manifest", m1).Build()
	b := NewBuilder("r", files).SetField("manifest", m2).Build()
	assert.Equal(t, a, b)
}

func TestAddPath_ContentChangesKey(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "input.txt", "v1")

	b1 := NewBuilder("r", NewFileHasher())
	require.NoError(t, b1.AddPath(path))
	before := b1.Build()

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	// A fresh FileHasher models a fresh engine run.
	b2 := NewBuilder("r", NewFileHasher())
	require.NoError(t, b2.AddPath(path))
	after := b2.Build()

	assert.NotEqual(t, before, after)
}

func TestAddPath_UnreadableFileIsIOError(t *testing.T) {
	b := NewBuilder("r", NewFileHasher())
	err := b.AddPath(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)

	var ioErr *IOError
	assert.True(t, errors.As(err, &ioErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestAddRuleKeys_OrderMatters(t *testing.T) {
	files := NewFileHasher()
	k1 := NewBuilder("dep1", files).Build()
	k2 := NewBuilder("dep2", files).Build()

	a := NewBuilder("r", files).AddRuleKeys(k1, k2).Build()
	b := NewBuilder("r", files).AddRuleKeys(k2, k1).Build()
	assert.NotEqual(t, a, b)
}

func TestDependencyKeyPropagates(t *testing.T) {
	files := NewFileHasher()
	depA := NewBuilder("dep", files).SetField("cmd", "a").Build()
	depB := NewBuilder("dep", files).SetField("cmd", "b").Build()

	a := NewBuilder("r", files).SetField("out", "x").AddRuleKeys(depA).Build()
	b := NewBuilder("r", files).SetField("out", "x").AddRuleKeys(depB).Build()
	assert.NotEqual(t, a, b)
}

func TestFileHasher_CachesAcrossRules(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "shared.txt", "content")

	files := NewFileHasher()
	first, err := files.HashFile(path)
	require.NoError(t, err)

	// After the first read the content is pinned for the run: even if the
	// file changes on disk, the same run sees the original hash.
	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))
	second, err := files.HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFileHasher_ConcurrentAccess(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "input.txt", "data")

	files := NewFileHasher()
	var wg sync.WaitGroup
	results := make([]Key, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sum, err := files.HashFile(path)
			assert.NoError(t, err)
			results[i] = sum
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
}

func TestParseKey_RoundTrip(t *testing.T) {
	k := NewBuilder("r", NewFileHasher()).SetField("x", "y").Build()
	parsed, err := ParseKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParseKey("zzzz")
	assert.Error(t, err)
	_, err = ParseKey("abcd")
	assert.Error(t, err)
}
