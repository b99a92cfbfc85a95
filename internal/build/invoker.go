// Package build runs the external document compiler for one source at a time
// and publishes the produced artifact into the public output directory.
package build

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/conneroisu/livetex/internal/config"
	"github.com/conneroisu/livetex/internal/errors"
	"github.com/conneroisu/livetex/internal/logging"
	"github.com/spf13/afero"
)

// Result describes one finished compiler invocation.
type Result struct {
	Source         string
	ID             string
	ExitCode       int
	Success        bool
	TimedOut       bool
	ArtifactCopied bool
	Duration       time.Duration
}

// Invoker wraps the configured build command.
type Invoker struct {
	command         []string
	outputFlag      string
	root            string
	intermediateDir string
	artifactExt     string
	logExt          string
	timeout         time.Duration
	fs              afero.Fs
	logger          logging.Logger
}

// NewInvoker creates an invoker from the resolved configuration. fs is used
// for locating and copying artifacts; the compiler itself always writes to
// the real filesystem.
func NewInvoker(cfg *config.Config, fs afero.Fs, logger logging.Logger) *Invoker {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Invoker{
		command:         append([]string(nil), cfg.Build.Command...),
		outputFlag:      cfg.Build.OutputFlag,
		root:            cfg.Build.Root,
		intermediateDir: cfg.Build.IntermediateDir,
		artifactExt:     cfg.Build.ArtifactExtension,
		logExt:          cfg.Build.LogExtension,
		timeout:         cfg.Build.Timeout,
		fs:              fs,
		logger:          logger.WithComponent("invoker"),
	}
}

// Args returns the full argument vector used to build source, program first.
func (inv *Invoker) Args(source string) []string {
	args := make([]string, 0, len(inv.command)+2)
	args = append(args, inv.command...)
	if inv.outputFlag != "" {
		args = append(args, inv.outputFlag+"="+inv.intermediateDir)
	}

	return append(args, source)
}

// ArtifactPath returns where the compiler is expected to leave the artifact for id.
func (inv *Invoker) ArtifactPath(id string) string {
	return filepath.Join(inv.intermediateDir, DerivedName(id, inv.artifactExt))
}

// LogPath returns where the compiler is expected to leave the build log for id.
func (inv *Invoker) LogPath(id string) string {
	return filepath.Join(inv.intermediateDir, DerivedName(id, inv.logExt))
}

// Invoke compiles source and waits for the compiler to exit. A non-zero exit
// is reported through Result, not as an error. Errors are returned only when
// the command cannot be spawned, when ctx is cancelled, or when copying the
// artifact into outputDir fails. An empty outputDir skips the copy.
func (inv *Invoker) Invoke(ctx context.Context, source, outputDir string) (*Result, error) {
	if len(inv.command) == 0 {
		return nil, errors.NewConfigError("build command is empty", nil)
	}

	id := Identifier(source)
	log := inv.logger.With("source", id)
	perf := logging.StartOperation(log, "compile")

	buildCtx := ctx
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	args := inv.Args(source)
	cmd := exec.CommandContext(buildCtx, args[0], args[1:]...)
	cmd.Dir = inv.root
	// Stdin, Stdout and Stderr stay nil: the compiler writes its own log file.

	log.Debug(ctx, "Starting compilation", "args", args)

	if err := cmd.Start(); err != nil {
		return nil, errors.NewSpawnError(fmt.Sprintf("cannot start %s", args[0]), err).WithSource(id)
	}

	result := &Result{Source: source, ID: id}

	waitErr := cmd.Wait()
	result.Duration = perf.End(ctx, "source", id)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("build of %s interrupted: %w", id, ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		result.Success = true
	case stderrors.As(waitErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		result.TimedOut = stderrors.Is(buildCtx.Err(), context.DeadlineExceeded)
	default:
		return nil, errors.NewInternalError("waiting for build command", waitErr).WithSource(id)
	}

	log.Debug(ctx, "Compilation finished",
		"exit_code", result.ExitCode,
		"timed_out", result.TimedOut,
		"duration_ms", result.Duration.Milliseconds())

	if !result.Success {
		return result, nil
	}

	artifact := inv.ArtifactPath(id)
	if _, err := inv.fs.Stat(artifact); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			log.Info(ctx, "Build succeeded without producing an artifact", "artifact", artifact)
			return result, nil
		}
		return nil, errors.NewIOError(errors.ErrCodeArtifactStat, "cannot stat artifact", err).WithSource(id)
	}

	if outputDir == "" {
		return result, nil
	}

	target := filepath.Join(outputDir, DerivedName(id, inv.artifactExt))
	if err := CopyAtomic(inv.fs, artifact, target); err != nil {
		return nil, errors.NewIOError(errors.ErrCodeArtifactCopy, "publishing artifact", err).WithSource(id)
	}
	result.ArtifactCopied = true

	return result, nil
}

// CopyAtomic copies src to dst through a temporary file in dst's directory so
// readers of dst only ever see a complete file.
func CopyAtomic(fsys afero.Fs, src, dst string) (err error) {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := afero.TempFile(fsys, filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = fsys.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}

	return fsys.Rename(tmpName, dst)
}
