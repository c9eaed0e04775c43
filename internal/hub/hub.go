// Package hub fans newly persisted alerts out to connected WebSocket viewers.
package hub

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"skywatch/alert-server/internal/model"
	"skywatch/alert-server/internal/observability"
)

const (
	// sendQueueSize bounds the per-session delivery queue. A session that
	// falls this far behind is disconnected rather than blocking the rest.
	sendQueueSize = 32

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Event is the envelope pushed to viewers for each persisted alert.
type Event struct {
	Event string            `json:"event"`
	Data  model.StoredAlert `json:"data"`
}

// Session is one connected viewer. Delivery is FIFO through a bounded queue.
type Session struct {
	conn *websocket.Conn
	send chan model.StoredAlert

	mu     sync.Mutex
	closed bool
}

func newSession(conn *websocket.Conn) *Session {
	return &Session{conn: conn, send: make(chan model.StoredAlert, sendQueueSize)}
}

// trySend queues the alert unless the session is closed or its queue is
// full. Queueing and close exclude each other via the session lock, so a
// concurrent disconnect can never turn the send into a panic.
func (s *Session) trySend(alert model.StoredAlert) (queued, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, false
	}

	select {
	case s.send <- alert:
		return true, false
	default:
		return false, true
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// Hub owns the session registry. Registration, unregistration, and broadcast
// may all be invoked concurrently; the registry lock is never held across a
// network write.
type Hub struct {
	logger   *slog.Logger
	metrics  *observability.Metrics
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	closed   bool
}

// New constructs a hub. allowOrigins is the CORS allow-list applied at
// upgrade time; an empty list accepts any origin.
func New(logger *slog.Logger, metrics *observability.Metrics, allowOrigins []string) *Hub {
	h := &Hub{
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[*Session]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowOrigins) == 0 {
				return true
			}
			for _, allowed := range allowOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS upgrades an HTTP request and runs the session until the peer
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	session := newSession(conn)
	h.register(session)
	h.logger.Info("viewer connected", "remote", r.RemoteAddr)

	go h.writePump(session)
	h.readPump(session)

	h.Unregister(session)
	h.logger.Info("viewer disconnected", "remote", r.RemoteAddr)
}

// Broadcast queues the alert for every currently registered session. A full
// queue means the session cannot keep up; it is evicted so the remaining
// sessions see no delay.
func (h *Hub) Broadcast(alert model.StoredAlert) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	var slow []*Session
	for _, s := range sessions {
		if _, full := s.trySend(alert); full {
			slow = append(slow, s)
		}
	}

	for _, s := range slow {
		h.logger.Warn("evicting slow viewer session")
		h.Unregister(s)
	}
}

// Count reports the number of registered sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every session and rejects further registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[*Session]struct{})
	h.closed = true
	h.metrics.ConnectedViewers.Set(0)
	h.mu.Unlock()

	for s := range sessions {
		s.close()
	}
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.close()
		return
	}
	h.sessions[s] = struct{}{}
	h.metrics.ConnectedViewers.Set(float64(len(h.sessions)))
	h.mu.Unlock()
}

// Unregister removes the session and closes its connection. Safe to call more
// than once for the same session.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if _, present := h.sessions[s]; present {
		delete(h.sessions, s)
		h.metrics.ConnectedViewers.Set(float64(len(h.sessions)))
	}
	h.mu.Unlock()

	s.close()
}

func (h *Hub) writePump(s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case alert, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(Event{Event: "alert", Data: alert}); err != nil {
				h.Unregister(s)
				return
			}
			h.metrics.AlertsDelivered.Inc()
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.Unregister(s)
				return
			}
		}
	}
}

// readPump discards inbound frames; viewers are read-only consumers. It
// returns once the peer closes the connection.
func (h *Hub) readPump(s *Session) {
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
