package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/conneroisu/livetex/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// Trigger wakes a worker early, before its next polling tick. The worker
// still compares modification times, so spurious wake-ups are harmless.
type Trigger interface {
	Events() <-chan struct{}
	Close() error
}

// NotifyTrigger uses fsnotify on the source's directory. Watching the
// directory rather than the file keeps working when editors replace the file
// by renaming a new one over it.
type NotifyTrigger struct {
	watcher *fsnotify.Watcher
	source  string
	events  chan struct{}
	logger  logging.Logger

	closeOnce sync.Once
}

// NewNotifyTrigger starts watching the directory of source until ctx is done
// or Close is called.
func NewNotifyTrigger(ctx context.Context, source string, logger logging.Logger) (*NotifyTrigger, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	clean := filepath.Clean(source)
	if err := watcher.Add(filepath.Dir(clean)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(clean), err)
	}

	if logger == nil {
		logger = logging.Nop()
	}

	t := &NotifyTrigger{
		watcher: watcher,
		source:  clean,
		events:  make(chan struct{}, 1),
		logger:  logger,
	}
	go t.watchLoop(ctx)

	return t, nil
}

// Events returns a channel that receives a value after one or more relevant
// filesystem events. Bursts are coalesced into a single pending signal.
func (t *NotifyTrigger) Events() <-chan struct{} {
	return t.events
}

// Close stops the underlying fsnotify watcher.
func (t *NotifyTrigger) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.watcher.Close()
	})

	return err
}

func (t *NotifyTrigger) watchLoop(ctx context.Context) {
	defer t.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != t.source {
				continue
			}
			select {
			case t.events <- struct{}{}:
			default:
				// A wake-up is already pending
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			// Log error but continue watching
			t.logger.Warn(ctx, err, "File watcher error", "source", t.source)
		}
	}
}
