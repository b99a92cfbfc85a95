// Package validation guards values taken from requests before they are used
// to build filesystem paths.
package validation

import (
	"path/filepath"
	"strings"

	"github.com/conneroisu/livetex/internal/errors"
)

// ValidateIdentifier checks that id names a single file inside a directory:
// no separators, no parent references, no NUL bytes.
func ValidateIdentifier(id string) error {
	if id == "" {
		return errors.ErrInvalidIdentifier(id, "empty")
	}
	if id == "." || id == ".." {
		return errors.ErrInvalidIdentifier(id, "directory reference")
	}
	if strings.ContainsRune(id, 0) {
		return errors.ErrInvalidIdentifier(id, "contains NUL byte")
	}
	if strings.ContainsAny(id, `/\`) {
		return errors.ErrInvalidIdentifier(id, "contains path separator")
	}
	if filepath.Base(id) != id {
		return errors.ErrInvalidIdentifier(id, "not a base name")
	}

	return nil
}

// SafeJoin joins dir and the file name derived from id, refusing anything
// that would resolve outside dir.
func SafeJoin(dir, name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}

	joined := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, joined)
	if err != nil || rel != name {
		return "", errors.ErrInvalidIdentifier(name, "escapes directory")
	}

	return joined, nil
}
