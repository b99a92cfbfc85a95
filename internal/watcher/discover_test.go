package watcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	root := t.TempDir()

	for _, name := range []string{"b.tex", "a.TEX", "readme.md", "c.tex.orig"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(root, "chapters.tex"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "chapters.tex", "nested.tex"), []byte("x"), 0o644))

	sources, err := Discover(root, []string{".tex"})
	require.NoError(t, err)

	canonicalRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(canonicalRoot, "a.TEX"),
		filepath.Join(canonicalRoot, "b.tex"),
	}, sources)
}

func TestDiscoverResolvesFileSymlinks(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(t.TempDir(), "real.tex")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	if err := os.Symlink(target, filepath.Join(root, "link.tex")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	require.NoError(t, os.Symlink(target, filepath.Join(root, "second-link.tex")))
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "dangling.tex")))

	sources, err := Discover(root, []string{".tex"})
	require.NoError(t, err)

	canonical, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)
	assert.Equal(t, []string{canonical}, sources)
}

func TestDiscoverMissingRoot(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "absent"), []string{".tex"})
	assert.Error(t, err)
}

func TestDiscoverEmpty(t *testing.T) {
	sources, err := Discover(t.TempDir(), []string{".tex"})
	require.NoError(t, err)
	assert.Empty(t, sources)
}
