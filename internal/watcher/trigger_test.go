package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/livetex/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyTriggerWakesOnSourceWrite(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "paper.tex")
	require.NoError(t, os.WriteFile(source, []byte("a"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger, err := NewNotifyTrigger(ctx, source, logging.Nop())
	require.NoError(t, err)
	defer trigger.Close()

	require.NoError(t, os.WriteFile(source, []byte("b"), 0o644))

	select {
	case <-trigger.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("no wake-up after writing the source")
	}
}

func TestNotifyTriggerIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "paper.tex")
	require.NoError(t, os.WriteFile(source, []byte("a"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger, err := NewNotifyTrigger(ctx, source, nil)
	require.NoError(t, err)
	defer trigger.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.tex"), []byte("b"), 0o644))

	select {
	case <-trigger.Events():
		t.Fatal("woke up for an unrelated file")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifyTriggerMissingDirectory(t *testing.T) {
	_, err := NewNotifyTrigger(context.Background(), filepath.Join(t.TempDir(), "gone", "a.tex"), nil)
	assert.Error(t, err)
}

func TestNotifyTriggerCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	trigger, err := NewNotifyTrigger(context.Background(), filepath.Join(dir, "a.tex"), nil)
	require.NoError(t, err)

	assert.NoError(t, trigger.Close())
	assert.NoError(t, trigger.Close())
}
