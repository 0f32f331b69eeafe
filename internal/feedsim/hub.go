package feedsim

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sm64br/runwatch/pkg/logger"
)

// Hub configuration constants.
const (
	subscriberBuffer = 64
	writeTimeout     = 5 * time.Second
)

type subscriber struct {
	send chan []byte
}

// Hub fans frames out to every connected websocket subscriber. Slow
// subscribers lose frames instead of stalling the broadcast.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	sent     atomic.Int64
	dropped  atomic.Int64
	done     chan struct{}
	once     sync.Once
	logger   logger.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		subs:     make(map[*subscriber]struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("feedsim"),
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })
}

// Broadcast queues frame for every subscriber.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.send <- frame:
			h.sent.Add(1)
		default:
			h.dropped.Add(1)
		}
	}
}

// ServeHTTP upgrades the request and streams frames until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "feed simulator closed", http.StatusServiceUnavailable)
		return
	default:
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	s := &subscriber{send: make(chan []byte, subscriberBuffer)}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	h.logger.Info(r.Context(), "subscriber connected", logger.String("remote", r.RemoteAddr))

	defer func() {
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
		_ = conn.Close()
		h.logger.Info(context.Background(), "subscriber disconnected", logger.String("remote", r.RemoteAddr))
	}()

	// The read loop answers pings and notices the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-h.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeTimeout))
			return
		case frame := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}
