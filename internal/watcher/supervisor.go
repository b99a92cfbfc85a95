package watcher

import (
	"context"
	"sort"
	"sync"

	"github.com/conneroisu/livetex/internal/build"
	"github.com/conneroisu/livetex/internal/errors"
	"github.com/conneroisu/livetex/internal/logging"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// TriggerFactory creates the early wake-up source for one worker.
type TriggerFactory func(ctx context.Context, source string) (Trigger, error)

// NotifyTriggers returns a TriggerFactory backed by fsnotify.
func NotifyTriggers(logger logging.Logger) TriggerFactory {
	return func(ctx context.Context, source string) (Trigger, error) {
		return NewNotifyTrigger(ctx, source, logger)
	}
}

// WorkerStatus is a point-in-time view of one worker, as reported by
// /health.
type WorkerStatus struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	State  string `json:"state"`
	Builds int64  `json:"builds"`
}

// Supervisor spawns one Worker per source and isolates them from each other:
// a worker that fails or panics stops alone.
type Supervisor struct {
	cfg      WorkerConfig
	triggers TriggerFactory
	logger   logging.Logger

	mu      sync.RWMutex
	workers map[string]*Worker
	wg      conc.WaitGroup
}

// NewSupervisor creates a supervisor. triggers may be nil for pure polling.
func NewSupervisor(cfg WorkerConfig, triggers TriggerFactory) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	return &Supervisor{
		cfg:      cfg,
		triggers: triggers,
		logger:   cfg.Logger.WithComponent("supervisor"),
		workers:  make(map[string]*Worker),
	}
}

// Start spawns a worker for every source path. It fails without starting
// anything if two paths share an identifier or one is already supervised.
func (s *Supervisor) Start(ctx context.Context, sources []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]string, len(sources))
	for _, source := range sources {
		id := build.Identifier(source)
		if first, ok := seen[id]; ok {
			return errors.ErrDuplicateSource(id, first, source)
		}
		if existing, ok := s.workers[id]; ok {
			return errors.ErrDuplicateSource(id, existing.Source(), source)
		}
		seen[id] = source
	}

	for _, source := range sources {
		worker := NewWorker(source, s.cfg, s.newTrigger(ctx, source))
		s.workers[worker.ID()] = worker
		s.logger.Info(ctx, "Monitoring source", "source", source)

		s.wg.Go(func() {
			s.run(ctx, worker)
		})
	}

	return nil
}

func (s *Supervisor) newTrigger(ctx context.Context, source string) Trigger {
	if s.triggers == nil {
		return nil
	}

	trigger, err := s.triggers(ctx, source)
	if err != nil {
		s.logger.Warn(ctx, err, "Change notifications unavailable, polling only", "source", source)
		return nil
	}

	return trigger
}

func (s *Supervisor) run(ctx context.Context, worker *Worker) {
	var catcher panics.Catcher
	catcher.Try(func() {
		if err := worker.Run(ctx); err != nil {
			s.logger.Error(ctx, err, "Worker stopped", "source", worker.ID())
		}
	})

	if recovered := catcher.Recovered(); recovered != nil {
		worker.setState(StateStopped)
		s.logger.Error(ctx, recovered.AsError(), "Worker panicked", "source", worker.ID())
	}
}

// Wait blocks until every worker has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Status lists all workers sorted by identifier.
func (s *Supervisor) Status() []WorkerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]WorkerStatus, 0, len(s.workers))
	for _, worker := range s.workers {
		statuses = append(statuses, WorkerStatus{
			ID:     worker.ID(),
			Source: worker.Source(),
			State:  worker.State().String(),
			Builds: worker.Builds(),
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })

	return statuses
}
