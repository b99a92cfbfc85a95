// Package watcher keeps every watched source compiled: one Worker per source
// polls its modification time and rebuilds on change, and the Supervisor
// owns the set of workers.
package watcher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/conneroisu/livetex/internal/build"
	"github.com/conneroisu/livetex/internal/errors"
	"github.com/conneroisu/livetex/internal/logging"
	"github.com/conneroisu/livetex/internal/state"
	"github.com/spf13/afero"
)

// WorkerState is the lifecycle phase of a Worker.
type WorkerState int32

const (
	StateInitializing WorkerState = iota
	StateWatching
	StateStopped
)

// String returns the string representation of the WorkerState
func (s WorkerState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateWatching:
		return "watching"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Builder compiles one source. *build.Invoker implements it.
type Builder interface {
	Invoke(ctx context.Context, source, outputDir string) (*build.Result, error)
}

// WorkerConfig carries what every worker shares.
type WorkerConfig struct {
	OutputDir string
	Interval  time.Duration
	Builder   Builder
	Store     state.Store
	Fs        afero.Fs
	Logger    logging.Logger
}

// Worker watches a single source. Builds of one source are strictly
// sequential because only the worker's own goroutine ever starts them.
type Worker struct {
	source  string
	id      string
	cfg     WorkerConfig
	trigger Trigger
	logger  logging.Logger

	state  atomic.Int32
	builds atomic.Int64
}

// NewWorker creates a worker for the absolute path source. trigger may be nil
// for pure polling.
func NewWorker(source string, cfg WorkerConfig, trigger Trigger) *Worker {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	id := build.Identifier(source)

	return &Worker{
		source:  source,
		id:      id,
		cfg:     cfg,
		trigger: trigger,
		logger:  cfg.Logger.WithComponent("worker").With("source", id),
	}
}

// ID returns the source identifier.
func (w *Worker) ID() string {
	return w.id
}

// Source returns the watched path.
func (w *Worker) Source() string {
	return w.source
}

// State returns the current lifecycle phase.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Builds returns how many build attempts the worker has made.
func (w *Worker) Builds() int64 {
	return w.builds.Load()
}

func (w *Worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

// Run builds the source once, then polls until ctx is done or the source can
// no longer be inspected. It returns nil on cancellation and an I/O error when
// the source's metadata cannot be read.
func (w *Worker) Run(ctx context.Context) error {
	w.setState(StateInitializing)
	defer w.setState(StateStopped)

	if w.trigger != nil {
		defer w.trigger.Close()
	}

	lastMod, err := w.modTime()
	if err != nil {
		w.logger.Error(ctx, err, "Cannot read source, worker stopping")
		return err
	}

	if done := w.rebuild(ctx, false); done {
		return nil
	}

	w.setState(StateWatching)
	w.logger.Info(ctx, "Watching source", "interval", w.cfg.Interval.String())

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if w.trigger != nil {
		wake = w.trigger.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-wake:
		}

		mod, err := w.modTime()
		if err != nil {
			w.logger.Error(ctx, err, "Cannot read source, worker stopping")
			return err
		}
		if mod.Equal(lastMod) {
			continue
		}
		lastMod = mod

		w.logger.Info(ctx, "Source changed, rebuilding")
		if done := w.rebuild(ctx, true); done {
			return nil
		}
	}
}

func (w *Worker) modTime() (time.Time, error) {
	info, err := w.cfg.Fs.Stat(w.source)
	if err != nil {
		return time.Time{}, errors.NewIOError(errors.ErrCodeSourceStat, "reading source metadata", err).WithSource(w.id)
	}

	return info.ModTime(), nil
}

// rebuild runs one build and records its outcome. Spawn and copy failures are
// recorded as failed builds so the worker keeps polling. It reports true only
// when ctx was cancelled during the build.
func (w *Worker) rebuild(ctx context.Context, update bool) bool {
	w.builds.Add(1)

	result, err := w.cfg.Builder.Invoke(ctx, w.source, w.cfg.OutputDir)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		w.logger.Error(ctx, err, "Build could not complete", "error_type", string(errors.TypeOf(err)))
		w.cfg.Store.Put(w.id, state.Outcome{Update: update, Error: true})

		return false
	}

	if result.Success {
		w.logger.Info(ctx, "Build succeeded",
			"duration_ms", result.Duration.Milliseconds(),
			"artifact_published", result.ArtifactCopied)
	} else {
		w.logger.Warn(ctx, nil, "Build failed",
			"exit_code", result.ExitCode,
			"timed_out", result.TimedOut)
	}
	w.cfg.Store.Put(w.id, state.Outcome{Update: update, Error: !result.Success})

	return false
}
