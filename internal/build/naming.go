package build

import (
	"path/filepath"
	"strings"
)

// Identifier returns the source identifier for a watched path: its base name
// including the extension.
func Identifier(sourcePath string) string {
	return filepath.Base(sourcePath)
}

// DerivedName replaces the extension of id with ext. "thesis.tex" with ".pdf"
// becomes "thesis.pdf"; an id without extension simply gains ext.
func DerivedName(id, ext string) string {
	return strings.TrimSuffix(id, filepath.Ext(id)) + ext
}
