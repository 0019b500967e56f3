package mockserver

import (
	"log"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const sendBuffer = 64

type subscriber struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
}

func (s *subscriber) writePump() {
	defer s.conn.Close()
	for msg := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.hub.Remove(s)
			return
		}
	}
}

// Hub fans log records out to every connected /ws/logs subscriber. A
// subscriber that cannot keep up is disconnected.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]bool
	logger *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		subs:   make(map[*subscriber]bool),
		logger: logger,
	}
}

// Add registers conn and starts its writer.
func (h *Hub) Add(conn *websocket.Conn) *subscriber {
	s := &subscriber{
		conn: conn,
		hub:  h,
		send: make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	h.subs[s] = true
	h.mu.Unlock()

	go s.writePump()
	return s
}

// Remove unregisters s and closes its connection once pending writes are
// abandoned. It is safe to call more than once.
func (h *Hub) Remove(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
	h.mu.Unlock()
}

// Broadcast encodes rec and queues it for every subscriber.
func (h *Hub) Broadcast(rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		h.logger.Printf("broadcast marshal error: %v", err)
		return
	}
	h.logger.Printf("Broadcasting log: %s", data)

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if !h.offer(s, data) {
			h.logger.Printf("ws subscriber too slow, disconnecting")
			h.Remove(s)
		}
	}
}

// offer queues data for s without blocking. It reports false only when s
// is still registered but its buffer is full.
func (h *Hub) offer(s *subscriber, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.subs[s] {
		return true
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.send)
	}
	h.mu.Unlock()
}
