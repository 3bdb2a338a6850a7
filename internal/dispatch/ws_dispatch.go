package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/accessiride/internal/models"
	"github.com/example/accessiride/internal/observability"
)

const writeWait = 5 * time.Second

// WSSession is one client following a booking run.
type WSSession struct {
	conn *websocket.Conn
	out  chan models.BookingSnapshot
}

// enqueue never blocks: when the client falls behind the oldest pending
// snapshot is dropped, since every snapshot supersedes the previous one.
func (s *WSSession) enqueue(snap models.BookingSnapshot) {
	for {
		select {
		case s.out <- snap:
			return
		default:
		}
		select {
		case <-s.out:
		default:
		}
	}
}

// Hub fans booking snapshots out to websocket sessions by run id.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]map[*WSSession]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, sessions: make(map[string]map[*WSSession]struct{})}
}

// Publish matches booking.Observer.
func (h *Hub) Publish(snap models.BookingSnapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions[snap.RunID] {
		s.enqueue(snap)
	}
}

func (h *Hub) add(runID string, s *WSSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[runID] == nil {
		h.sessions[runID] = make(map[*WSSession]struct{})
	}
	h.sessions[runID][s] = struct{}{}
}

func (h *Hub) remove(runID string, s *WSSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions[runID], s)
	if len(h.sessions[runID]) == 0 {
		delete(h.sessions, runID)
	}
}

// Subscribers returns the number of sessions following runID.
func (h *Hub) Subscribers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[runID])
}

// Serve streams snapshots of runID to conn until the client goes away,
// ctx ends or the run is closed. current is read after the session is
// registered so no update between the two is lost.
func (h *Hub) Serve(ctx context.Context, runID string, conn *websocket.Conn, current func() models.BookingSnapshot) {
	s := &WSSession{conn: conn, out: make(chan models.BookingSnapshot, 8)}
	h.add(runID, s)
	observability.WSSubscribers.Inc()
	defer func() {
		h.remove(runID, s)
		observability.WSSubscribers.Dec()
		conn.Close()
	}()
	s.enqueue(current())

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
		case <-ctx.Done():
			return
		case <-gone:
			return
		case snap := <-s.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				h.logger.Warn("ws send error", "run_id", runID, "error", err)
				return
			}
			if snap.Closed {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run closed")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
		}
	}
}

// CloseAll disconnects every session.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.sessions {
		for s := range set {
			s.conn.Close()
		}
	}
}
