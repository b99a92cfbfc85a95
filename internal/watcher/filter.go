package watcher

import (
	"path/filepath"

	"golang.org/x/text/cases"
)

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// NewSourceFilter accepts paths whose extension matches one of extensions,
// ignoring case ("Paper.TEX" matches ".tex").
func NewSourceFilter(extensions []string) FileFilter {
	folded := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		folded[cases.Fold().String(ext)] = struct{}{}
	}

	return func(path string) bool {
		ext := filepath.Ext(path)
		if ext == "" {
			return false
		}
		_, ok := folded[cases.Fold().String(ext)]

		return ok
	}
}
