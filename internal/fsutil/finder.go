// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
)

// FindFilesByName recursively searches the given root path for all files
// with exactly the specified name. The returned paths are sorted, so build
// file discovery order never depends on directory iteration order.
func FindFilesByName(rootPath string, name string) ([]string, error) {
	if name == "" {
		panic("name must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == name {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Glob expands the given patterns against files under dir. Patterns use
// path-style glob syntax ("src/*.txt", "**/*.h") and match paths relative
// to dir. The expansion of each pattern is sorted; patterns keep their
// declared order, and a path matched by several patterns appears once, at
// its first match.
func Glob(dir string, patterns []string) ([]string, error) {
	compiled := make([]glob.Glob, len(patterns))
	for i, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("bad glob %q: %w", p, err)
		}
		compiled[i] = g
	}

	perPattern := make([][]string, len(patterns))
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for i, g := range compiled {
			if g.Match(rel) {
				perPattern[i] = append(perPattern[i], path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var files []string
	seen := make(map[string]bool)
	for _, matches := range perPattern {
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}
