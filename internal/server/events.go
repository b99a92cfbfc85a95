package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/conneroisu/livetex/internal/logging"
	"github.com/conneroisu/livetex/internal/state"
)

const (
	// Time allowed to write one event to the peer.
	writeWait = 10 * time.Second

	// Interval between pings used to detect dead peers.
	pingPeriod = 30 * time.Second
)

// subscriber holds at most one pending outcome; a newer outcome replaces an
// unsent older one, so slow clients always see the latest state.
type subscriber struct {
	pending chan state.Outcome
}

// EventHub pushes build outcomes to websocket clients subscribed to one
// source identifier each.
//
// Invariants:
//   - subscribers is only touched with mu held
//   - after Close, no subscriber channel receives a value
type EventHub struct {
	originPatterns []string
	logger         logging.Logger

	mu          sync.Mutex
	subscribers map[string]map[*subscriber]struct{}
	closed      bool
	done        chan struct{}

	// subscribed, if set, runs right after a client is registered.
	subscribed func(id string)
}

// NewEventHub creates a hub. originPatterns are passed to the websocket
// handshake in addition to the same-host origin it always accepts.
func NewEventHub(originPatterns []string, logger logging.Logger) *EventHub {
	if logger == nil {
		logger = logging.Nop()
	}

	return &EventHub{
		originPatterns: originPatterns,
		logger:         logger.WithComponent("events"),
		subscribers:    make(map[string]map[*subscriber]struct{}),
		done:           make(chan struct{}),
	}
}

// Publish delivers outcome to every subscriber of id without blocking. It has
// the state.Listener signature.
func (h *EventHub) Publish(id string, outcome state.Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for sub := range h.subscribers[id] {
		select {
		case <-sub.pending:
		default:
		}
		sub.pending <- outcome
	}
}

// Subscribers returns the number of clients listening to id.
func (h *EventHub) Subscribers(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subscribers[id])
}

func (h *EventHub) subscribe(id string) (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false
	}

	sub := &subscriber{pending: make(chan state.Outcome, 1)}
	if h.subscribers[id] == nil {
		h.subscribers[id] = make(map[*subscriber]struct{})
	}
	h.subscribers[id][sub] = struct{}{}

	return sub, true
}

func (h *EventHub) unsubscribe(id string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subscribers[id], sub)
	if len(h.subscribers[id]) == 0 {
		delete(h.subscribers, id)
	}
}

// Serve upgrades the request and streams outcomes for id until the client
// goes away or the hub is closed. The client is subscribed before current is
// called, and the outcome it returns (possibly nil) is sent first, so no write
// can fall between the two.
func (h *EventHub) Serve(w http.ResponseWriter, r *http.Request, id string, current func() *state.Outcome) {
	sub, ok := h.subscribe(id)
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	defer h.unsubscribe(id, sub)
	if h.subscribed != nil {
		h.subscribed(id)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept has already written the error response
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "source", id)
		return
	}
	defer conn.CloseNow()

	// Clients never send; CloseRead handles control frames and cancels ctx
	// once the peer disconnects.
	ctx := conn.CloseRead(r.Context())
	h.logger.Debug(ctx, "Client subscribed", "source", id)

	var initial *state.Outcome
	if current != nil {
		initial = current()
	}
	if err := h.send(ctx, conn, initial); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug(ctx, "Client left", "source", id)
			return
		case <-h.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case outcome := <-sub.pending:
			if err := h.send(ctx, conn, &outcome); err != nil {
				return
			}
		}
	}
}

func (h *EventHub) send(ctx context.Context, conn *websocket.Conn, outcome *state.Outcome) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := wsjson.Write(writeCtx, conn, outcome); err != nil {
		h.logger.Debug(ctx, "Event write failed", "error", err.Error())
		return err
	}

	return nil
}

// Close disconnects every client. It is safe to call more than once.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}
