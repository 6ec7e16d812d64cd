package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nahidhasan98/finetune-relay/internal/logger"
	"github.com/nahidhasan98/finetune-relay/internal/record"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Frame is the envelope written to WebSocket subscribers
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub serves the live record stream over WebSocket
type Hub struct {
	upgrader websocket.Upgrader
	log      *logger.Logger

	mu      sync.RWMutex
	clients map[*subscriber]struct{}
	closed  bool
}

// NewHub creates a hub accepting browser connections from allowedOrigins.
// "*" accepts any origin; requests without an Origin header are always accepted.
func NewHub(allowedOrigins []string, log *logger.Logger) *Hub {
	h := &Hub{
		log:     log.Component("ws"),
		clients: make(map[*subscriber]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Name implements Channel
func (h *Hub) Name() string { return "websocket" }

// ServeHTTP upgrades the request and streams frames until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	greeting, _ := json.Marshal(Frame{Event: "test", Data: map[string]string{"message": "Hello from server"}})
	sub.send <- greeting

	if !h.register(sub) {
		conn.Close()
		return
	}

	go h.writePump(sub)
	h.readPump(sub)
}

func (h *Hub) register(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[sub] = struct{}{}
	h.log.Debugf("Subscriber connected (total=%d)", len(h.clients))
	return true
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[sub]; ok {
		delete(h.clients, sub)
		close(sub.send)
		h.log.Debugf("Subscriber disconnected (total=%d)", len(h.clients))
	}
}

// readPump drains client frames so control messages are processed
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		h.unregister(sub)
		sub.conn.Close()
	}()

	sub.conn.SetReadLimit(4096)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Notify broadcasts an update_finetune frame. Slow subscribers drop the frame.
func (h *Hub) Notify(_ context.Context, rec *record.FineTuneRecord) error {
	msg, err := json.Marshal(Frame{Event: EventUpdateFineTune, Data: rec})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.clients {
		select {
		case sub.send <- msg:
		default:
			h.log.Warn("Subscriber buffer full, dropping record frame")
		}
	}
	return nil
}

// Subscribers returns the number of connected clients
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.clients {
		delete(h.clients, sub)
		close(sub.send)
	}
}
