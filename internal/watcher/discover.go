package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"
)

// Discover lists the watchable sources directly inside root (no recursion):
// regular files whose extension matches one of extensions, case-insensitively.
// Each match is returned as its canonical path, with symlinks resolved, so a
// link is watched (and identified) as the file it points at. Dangling links,
// names that are not valid UTF-8 and repeated targets are skipped. The result
// is sorted.
func Discover(root string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading root %s: %w", root, err)
	}

	match := NewSourceFilter(extensions)
	sources := make([]string, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !utf8.ValidString(name) || !match(name) {
			continue
		}

		path, err := filepath.Abs(filepath.Join(root, name))
		if err != nil {
			continue
		}
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			continue
		}
		info, err := os.Stat(resolved)
		if err != nil || !info.Mode().IsRegular() || seen[resolved] {
			continue
		}

		seen[resolved] = true
		sources = append(sources, resolved)
	}

	sort.Strings(sources)

	return sources, nil
}
