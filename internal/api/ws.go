package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/monlabs/monwatch/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// read-only feed on a loopback-default server
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans emitted alerts out to websocket subscribers. A subscriber
// that cannot keep up is dropped rather than allowed to stall the
// broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan models.Alert
	closed  bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan models.Alert)}
}

// HandleWS upgrades the connection and streams alerts until the client
// disconnects or the hub closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ch := make(chan models.Alert, 16)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = ch
	h.mu.Unlock()

	defer h.drop(conn)

	// discard inbound frames, detect disconnect
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()

	for alert := range ch {
		if err := conn.WriteJSON(alert); err != nil {
			return
		}
	}
}

// Broadcast queues an alert for every subscriber, dropping slow ones.
func (h *Hub) Broadcast(alert models.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- alert:
		default:
			log.Warn().Msg("dropping slow websocket subscriber")
			delete(h.clients, conn)
			close(ch)
			conn.Close()
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
	}
	conn.Close()
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn, ch := range h.clients {
		delete(h.clients, conn)
		close(ch)
		conn.Close()
	}
}
