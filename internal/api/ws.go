package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ferZyx/ip-cam-monitor/internal/alarm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for dev; restrict in prod
	},
}

const wsWriteTimeout = 5 * time.Second

// Hub fans resolved-alarm notifications out to connected websocket
// clients. Implements alarm.Publisher.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{})}
}

type wsEvent struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Code       string    `json:"code"`
	Resolution string    `json:"resolution"`
	Strategy   string    `json:"strategy"`
	Score      float64   `json:"score"`
	PhotoBytes int       `json:"photo_bytes"`
}

// PublishResolved broadcasts the event to every client. Slow or broken
// clients get dropped, never waited on.
func (h *Hub) PublishResolved(ev *alarm.Event) {
	msg := wsEvent{
		Type:       "alarm_resolved",
		ID:         ev.ID.String(),
		Timestamp:  ev.Timestamp,
		Code:       ev.Code,
		Resolution: string(ev.Resolution),
		Strategy:   ev.Report.Strategy,
		Score:      ev.Report.Score,
		PhotoBytes: len(ev.Image),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] marshal failed: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// ServeWS GET /api/ws: upgrade and hold the connection open for pushes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	log.Printf("[WS] client connected from %s (%d total)", r.RemoteAddr, n)

	// Drain reads so pings and close frames get processed. The push
	// channel is one way, inbound payloads are ignored.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.conns, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}
