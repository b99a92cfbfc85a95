package build

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/livetex/internal/config"
	"github.com/conneroisu/livetex/internal/errors"
	"github.com/conneroisu/livetex/internal/logging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompiler mimics a TeX engine: it reads -output-directory=<dir> and the
// source path, then writes <stem>.pdf and <stem>.log into <dir>.
const fakeCompiler = `#!/bin/sh
out="${1#*=}"
src="$2"
name=$(basename "$src")
stem="${name%.*}"
pwd > "$out/$stem.log"
printf 'PDF of %s' "$name" > "$out/$stem.pdf"
`

const failingCompiler = `#!/bin/sh
out="${1#*=}"
name=$(basename "$2")
printf 'error in %s' "$name" > "$out/${name%.*}.log"
exit 3
`

type testEnv struct {
	root         string
	output       string
	intermediate string
	source       string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	base := t.TempDir()
	env := &testEnv{
		root:         filepath.Join(base, "docs"),
		output:       filepath.Join(base, "docs", "live-compiled"),
		intermediate: filepath.Join(base, "intermediate"),
	}
	for _, dir := range []string{env.root, env.output, env.intermediate} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	env.source = filepath.Join(env.root, "paper.tex")
	require.NoError(t, os.WriteFile(env.source, []byte(`\documentclass{article}`), 0o644))

	return env
}

func (env *testEnv) script(t *testing.T, body string) []string {
	t.Helper()

	path := filepath.Join(env.root, "compile.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))

	return []string{"sh", path}
}

func (env *testEnv) invoker(command []string, timeout time.Duration) *Invoker {
	cfg := &config.Config{
		Build: config.BuildConfig{
			Root:              env.root,
			Command:           command,
			OutputFlag:        config.DefaultOutputFlag,
			OutputDir:         env.output,
			IntermediateDir:   env.intermediate,
			ArtifactExtension: ".pdf",
			LogExtension:      ".log",
			Timeout:           timeout,
		},
	}

	return NewInvoker(cfg, afero.NewOsFs(), logging.Nop())
}

func TestDerivedName(t *testing.T) {
	assert.Equal(t, "paper.pdf", DerivedName("paper.tex", ".pdf"))
	assert.Equal(t, "paper.v2.log", DerivedName("paper.v2.tex", ".log"))
	assert.Equal(t, "README.pdf", DerivedName("README", ".pdf"))
	assert.Equal(t, "paper.tex", Identifier("/some/dir/paper.tex"))
}

func TestInvokerArgs(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoker([]string{"latexmk", "-pdf"}, 0)

	args := inv.Args(env.source)
	assert.Equal(t, []string{"latexmk", "-pdf", "-output-directory=" + env.intermediate, env.source}, args)

	inv.outputFlag = ""
	assert.Equal(t, []string{"latexmk", "-pdf", env.source}, inv.Args(env.source))
}

func TestInvokeSuccessCopiesArtifact(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoker(env.script(t, fakeCompiler), 0)

	result, err := inv.Invoke(context.Background(), env.source, env.output)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ExitCode)
	assert.True(t, result.ArtifactCopied)
	assert.Equal(t, "paper.tex", result.ID)

	published, err := os.ReadFile(filepath.Join(env.output, "paper.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "PDF of paper.tex", string(published))

	// The log stays in the intermediate directory only.
	assert.FileExists(t, inv.LogPath("paper.tex"))
	assert.NoFileExists(t, filepath.Join(env.output, "paper.log"))

	entries, err := os.ReadDir(env.output)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files may be left behind")
}

func TestInvokeRunsInRoot(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoker(env.script(t, fakeCompiler), 0)

	_, err := inv.Invoke(context.Background(), env.source, "")
	require.NoError(t, err)

	logged, err := os.ReadFile(inv.LogPath("paper.tex"))
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(env.root)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(string(logged[:len(logged)-1]))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestInvokeWithoutOutputDirSkipsCopy(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoker(env.script(t, fakeCompiler), 0)

	result, err := inv.Invoke(context.Background(), env.source, "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.ArtifactCopied)
	assert.FileExists(t, inv.ArtifactPath("paper.tex"))
	assert.NoFileExists(t, filepath.Join(env.output, "paper.pdf"))
}

func TestInvokeSuccessWithoutArtifact(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoker([]string{"echo"}, 0)

	result, err := inv.Invoke(context.Background(), env.source, env.output)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.ArtifactCopied)
	assert.NoFileExists(t, filepath.Join(env.output, "paper.pdf"))
}

func TestInvokeFailureKeepsPreviousArtifact(t *testing.T) {
	env := newTestEnv(t)
	previous := filepath.Join(env.output, "paper.pdf")
	require.NoError(t, os.WriteFile(previous, []byte("old"), 0o644))

	inv := env.invoker(env.script(t, failingCompiler), 0)

	result, err := inv.Invoke(context.Background(), env.source, env.output)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.ArtifactCopied)

	kept, err := os.ReadFile(previous)
	require.NoError(t, err)
	assert.Equal(t, "old", string(kept))
	assert.FileExists(t, inv.LogPath("paper.tex"))
}

func TestInvokeSpawnError(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoker([]string{filepath.Join(env.root, "no-such-compiler")}, 0)

	result, err := inv.Invoke(context.Background(), env.source, env.output)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsSpawnError(err))
}

func TestInvokeEmptyCommand(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoker(nil, 0)

	_, err := inv.Invoke(context.Background(), env.source, env.output)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestInvokeTimeoutIsCompileFailure(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoker([]string{"sleep", "5"}, 100*time.Millisecond)
	inv.outputFlag = ""

	start := time.Now()
	result, err := inv.Invoke(context.Background(), "5", "")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 4*time.Second)
	assert.False(t, result.Success)
	assert.True(t, result.TimedOut)
}

func TestInvokeCancelled(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoker([]string{"sleep", "5"}, 0)
	inv.outputFlag = ""

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	result, err := inv.Invoke(ctx, "5", "")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvokeCopyFailureIsIOError(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoker(env.script(t, fakeCompiler), 0)

	missing := filepath.Join(env.root, "does", "not", "exist")
	_, err := inv.Invoke(context.Background(), env.source, missing)
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))
	assertCode(t, err, errors.ErrCodeArtifactCopy)
}

// statFailingFs refuses to stat artifacts.
type statFailingFs struct {
	afero.Fs
}

func (fs statFailingFs) Stat(name string) (os.FileInfo, error) {
	if filepath.Ext(name) == ".pdf" {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrPermission}
	}

	return fs.Fs.Stat(name)
}

func TestInvokeArtifactStatFailureIsNotACopyError(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoker(env.script(t, fakeCompiler), 0)
	inv.fs = statFailingFs{Fs: afero.NewOsFs()}

	_, err := inv.Invoke(context.Background(), env.source, env.output)
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))
	assertCode(t, err, errors.ErrCodeArtifactStat)
	assert.NoFileExists(t, filepath.Join(env.output, "paper.pdf"))
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()

	var typed *errors.Error
	require.True(t, stderrors.As(err, &typed))
	assert.Equal(t, code, typed.Code)
}

func TestCopyAtomicMemFs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/in", 0o755))
	require.NoError(t, fsys.MkdirAll("/out", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/in/a.pdf", []byte("new"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/out/a.pdf", []byte("old"), 0o644))

	require.NoError(t, CopyAtomic(fsys, "/in/a.pdf", "/out/a.pdf"))

	data, err := afero.ReadFile(fsys, "/out/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := afero.ReadDir(fsys, "/out")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCopyAtomicMissingSource(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/out", 0o755))

	err := CopyAtomic(fsys, "/in/missing.pdf", "/out/missing.pdf")
	assert.Error(t, err)
}
