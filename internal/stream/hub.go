// Package stream pushes world snapshots to websocket subscribers.
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/internal/crowd"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 8
)

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans snapshots out to every connected websocket client. A client that
// cannot keep up misses frames instead of slowing the simulation down.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
}

// NewHub returns an empty hub. A nil logger disables logging.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Read-only stream, so any origin may watch.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the subscription until the client
// goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(s) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.logger.Info("subscriber connected", zap.String("remote", conn.RemoteAddr().String()))

	go s.writeLoop()

	// Clients never send anything useful; reading only notices the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(s)
	h.logger.Info("subscriber disconnected", zap.String("remote", conn.RemoteAddr().String()))
}

func (s *subscriber) writeLoop() {
	defer s.conn.Close()
	for msg := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Hub) register(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[s] = struct{}{}
	return true
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[s]; ok {
		delete(h.clients, s)
		close(s.send)
	}
}

// Clients is the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast encodes the snapshot once and queues it for every subscriber. It
// returns how many subscribers got the frame.
func (h *Hub) Broadcast(snap crowd.Snapshot) (int, error) {
	data, err := snap.MarshalJSON()
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for s := range h.clients {
		select {
		case s.send <- data:
			delivered++
		default:
			h.logger.Debug("dropping frame for slow subscriber",
				zap.String("remote", s.conn.RemoteAddr().String()),
				zap.Int("step", snap.Step))
		}
	}
	return delivered, nil
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.clients {
		delete(h.clients, s)
		close(s.send)
	}
}
