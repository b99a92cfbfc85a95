package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/conneroisu/livetex/internal/logging"
	"github.com/conneroisu/livetex/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, maxConnections int) (*Server, string, context.CancelFunc, <-chan error) {
	t.Helper()

	cfg := testConfig()
	cfg.Server.MaxConnections = maxConnections

	store := state.NewMemoryStore()
	store.Put("a.tex", state.Outcome{Update: true})
	hub := NewEventHub(nil, logging.Nop())

	srv := New(cfg, NewHandler(Dependencies{Config: cfg, Store: store, Events: hub}), hub, logging.Nop())
	addr, err := srv.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	t.Cleanup(cancel)

	return srv, "http://" + addr.String(), cancel, done
}

func TestServerServesAndShutsDown(t *testing.T) {
	srv, base, cancel, done := startTestServer(t, 0)

	assert.Equal(t, base, "http://"+srv.Addr())

	resp, err := http.Get(base + "/state/a.tex")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	var outcome state.Outcome
	require.NoError(t, json.Unmarshal(body, &outcome))
	assert.True(t, outcome.Update)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	assert.True(t, srv.IsShutdown())
	assert.NoError(t, srv.Shutdown(context.Background()))

	_, err = srv.Listen()
	assert.Error(t, err)
}

func TestServerWithConnectionLimit(t *testing.T) {
	_, base, cancel, done := startTestServer(t, 2)

	for i := 0; i < 5; i++ {
		resp, err := http.Get(base + "/health")
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestServerListenIsIdempotent(t *testing.T) {
	cfg := testConfig()
	srv := New(cfg, http.NotFoundHandler(), nil, nil)

	first, err := srv.Listen()
	require.NoError(t, err)
	second, err := srv.Listen()
	require.NoError(t, err)
	assert.Equal(t, first.String(), second.String())

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServerListenFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "256.0.0.1"

	srv := New(cfg, http.NotFoundHandler(), nil, nil)
	assert.Error(t, srv.Start(context.Background()))
}

func TestShutdownBeforeListen(t *testing.T) {
	srv := New(testConfig(), http.NotFoundHandler(), nil, nil)

	assert.NoError(t, srv.Shutdown(context.Background()))
	assert.True(t, srv.IsShutdown())
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
}

func TestNewRequiresConfigAndHandler(t *testing.T) {
	assert.Panics(t, func() { New(nil, http.NotFoundHandler(), nil, nil) })
	assert.Panics(t, func() { New(testConfig(), nil, nil, nil) })
}
