package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"vibe-transcriber-service/internal/models"
)

// Hub fans terminal events out to WebSocket clients and keeps the most
// recent ones for late joiners.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	recent  []models.TerminalEvent
	keep    int
}

func newHub(keep int) *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool), keep: keep}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	for _, ev := range h.recent {
		if err := conn.WriteJSON(ev); err != nil {
			break
		}
	}
	log.Info().Int("clients", len(h.clients)).Msg("Client connected")
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	log.Info().Int("clients", len(h.clients)).Msg("Client disconnected")
}

// Broadcast records ev and writes it to every client. Clients that fail a
// write are dropped.
func (h *Hub) Broadcast(ev models.TerminalEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.recent = append(h.recent, ev)
	if len(h.recent) > h.keep {
		h.recent = h.recent[len(h.recent)-h.keep:]
	}
	for conn := range h.clients {
		if err := conn.WriteJSON(ev); err != nil {
			log.Warn().Err(err).Msg("Write error, dropping client")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Recent returns a copy of the retained events, oldest first.
func (h *Hub) Recent() []models.TerminalEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]models.TerminalEvent(nil), h.recent...)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

func (h *Hub) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	h.add(conn)

	// Keep connection alive, handle disconnects
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) recentHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.Recent())
}
