package config

import (
	"fmt"
	"os"
)

// PrepareDirectories creates the public output directory and the intermediate
// directory if they are absent. When no intermediate directory is configured a
// fresh temporary one is created. It returns a copy of c with both paths set
// and a cleanup func that removes only what it created as a temp dir.
func PrepareDirectories(c *Config) (*Config, func() error, error) {
	resolved := *c
	cleanup := func() error { return nil }

	if err := os.MkdirAll(resolved.Build.OutputDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating output directory: %w", err)
	}

	if resolved.Build.IntermediateDir == "" {
		dir, err := os.MkdirTemp("", "livetex-")
		if err != nil {
			return nil, nil, fmt.Errorf("creating intermediate directory: %w", err)
		}
		resolved.Build.IntermediateDir = dir
		cleanup = func() error { return os.RemoveAll(dir) }
	} else if err := os.MkdirAll(resolved.Build.IntermediateDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating intermediate directory: %w", err)
	}

	return &resolved, cleanup, nil
}
