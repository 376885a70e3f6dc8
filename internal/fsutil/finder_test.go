package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(rel), 0o644))
}

func rels(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

func TestFindFilesByName(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "BUILD.hcl")
	touch(t, root, "lib/BUILD.hcl")
	touch(t, root, "lib/util/BUILD.hcl")
	touch(t, root, "lib/notbuild.hcl")

	files, err := FindFilesByName(root, "BUILD.hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{"BUILD.hcl", "lib/BUILD.hcl", "lib/util/BUILD.hcl"}, rels(t, root, files))
}

func TestGlob(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a.txt")
	touch(t, root, "b.txt")
	touch(t, root, "c.bin")
	touch(t, root, "sub/d.txt")

	t.Run("star does not cross separators", func(t *testing.T) {
		files, err := Glob(root, []string{"*.txt"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "b.txt"}, rels(t, root, files))
	})

	t.Run("double star recurses", func(t *testing.T) {
		files, err := Glob(root, []string{"**.txt"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "b.txt", "sub/d.txt"}, rels(t, root, files))
	})

	t.Run("pattern order is kept, duplicates collapse", func(t *testing.T) {
		files, err := Glob(root, []string{"*.bin", "*.txt", "a.*"})
		require.NoError(t, err)
		assert.Equal(t, []string{"c.bin", "a.txt", "b.txt"}, rels(t, root, files))
	})

	t.Run("bad pattern", func(t *testing.T) {
		_, err := Glob(root, []string{"[unclosed"})
		assert.Error(t, err)
	})
}
