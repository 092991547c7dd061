package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/types"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// Live feed tuning.
const (
	subscriberBuffer = 256
	writeWait        = 5 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 512
)

// Hub fans live messages out to every connected subscriber. A subscriber
// whose buffer is full is dropped rather than slowing the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
	closed      bool
	logger      logger.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub logger.
func WithHubLogger(l logger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{subscribers: make(map[chan []byte]struct{})}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("live")
	}
	return h
}

// Subscribe registers a new subscriber. On a closed hub the returned
// channel is already closed.
func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers[ch] = struct{}{}
	metrics.UpdateLiveClients(len(h.subscribers))
	return ch
}

// Unsubscribe removes ch and closes it. Unknown channels are ignored.
func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(ch)
}

// remove must be called with mu held.
func (h *Hub) remove(ch chan []byte) {
	if _, ok := h.subscribers[ch]; !ok {
		return
	}
	delete(h.subscribers, ch)
	close(ch)
	metrics.UpdateLiveClients(len(h.subscribers))
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish encodes msg and offers it to every subscriber without blocking.
func (h *Hub) Publish(ctx context.Context, msg types.LiveMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(ctx, "failed to encode live message", logger.String("type", msg.Type), logger.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- payload:
		default:
			h.logger.Warn(ctx, "dropping slow live subscriber")
			h.remove(ch)
		}
	}
}

// PublishStatus announces the analytics readiness state.
func (h *Hub) PublishStatus(ctx context.Context, ready bool) {
	st := types.NewStatus(ready)
	h.Publish(ctx, types.LiveMessage{Type: types.MessageStatus, Status: &st})
}

// PublishResult announces a freshly submitted match.
func (h *Hub) PublishResult(ctx context.Context, ev model.MatchEvent) {
	res := types.NewMatchResult(ev)
	h.Publish(ctx, types.LiveMessage{Type: types.MessageResult, Result: &res})
}

// PublishDelivery announces how a submission's delivery ended.
func (h *Hub) PublishDelivery(ctx context.Context, o model.Outcome) {
	d := types.NewDelivery(o)
	h.Publish(ctx, types.LiveMessage{Type: types.MessageDelivery, Delivery: &d})
}

// Close disconnects every subscriber. Later subscribers are closed at once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		h.remove(ch)
	}
}

// LiveHandler serves the /live websocket feed.
type LiveHandler struct {
	deps     Dependencies
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewLiveHandler creates a new live feed handler.
func NewLiveHandler(deps Dependencies, hub *Hub) *LiveHandler {
	return &LiveHandler{
		deps: deps,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleLive handles GET /live. The current status is sent first, then every
// message published on the hub until either side goes away.
func (h *LiveHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	const op = "api.live"
	ctx := r.Context()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.hub.logger.Debug(ctx, "websocket upgrade failed", logger.Error(Wrap(op, err)))
		return
	}
	defer func() { _ = conn.Close() }()

	ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(ch)

	st := types.NewStatus(h.deps.Ready())
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(types.LiveMessage{Type: types.MessageStatus, Status: &st}); err != nil {
		h.hub.logger.Debug(ctx, "failed to write initial status", logger.Error(Wrap(op, err)))
		return
	}

	gone := make(chan struct{})
	go readPump(conn, gone)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case payload, ok := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames so control messages are processed, and
// closes gone once the peer disconnects.
func readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
