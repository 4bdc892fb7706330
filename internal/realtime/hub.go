package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/PortNumber53/tubeshelf/backend/internal/metrics"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"
)

const (
	EventHello    = "hello"
	EventVideo    = "video"
	EventCategory = "category"
	EventNavigate = "navigate"
)

// Event is the JSON message pushed to websocket clients.
type Event struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`

	Change   models.ChangeType `json:"change,omitempty"`
	Video    *models.Video     `json:"video,omitempty"`
	Category *models.Category  `json:"category,omitempty"`
	Path     string            `json:"path,omitempty"`

	At string `json:"at"`
}

// Hub tracks open websocket connections per user. Each connection belongs to
// one browser context.
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]string
	log   zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]map[*websocket.Conn]string),
		log:   logging.Component("realtime"),
	}
}

func (h *Hub) Add(userID, contextID string, c *websocket.Conn) {
	if h == nil || c == nil || strings.TrimSpace(userID) == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.conns[userID]
	if m == nil {
		m = make(map[*websocket.Conn]string)
		h.conns[userID] = m
	}
	if _, ok := m[c]; !ok {
		metrics.RealtimeConnections.Inc()
	}
	m[c] = contextID
}

func (h *Hub) Remove(userID string, c *websocket.Conn) {
	if h == nil || c == nil || strings.TrimSpace(userID) == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.conns[userID]
	if m == nil {
		return
	}
	if _, ok := m[c]; ok {
		metrics.RealtimeConnections.Dec()
	}
	delete(m, c)
	if len(m) == 0 {
		delete(h.conns, userID)
	}
}

func (h *Hub) Count(userID string) int {
	if h == nil || strings.TrimSpace(userID) == "" {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

// Broadcast sends ev to every connection of userID.
func (h *Hub) Broadcast(userID string, ev Event) {
	h.send(userID, ev, func(string) bool { return true })
}

// SendToContext sends ev only to the connections of one browser context.
func (h *Hub) SendToContext(userID, contextID string, ev Event) {
	if strings.TrimSpace(contextID) == "" {
		return
	}
	h.send(userID, ev, func(c string) bool { return c == contextID })
}

func (h *Hub) send(userID string, ev Event, match func(contextID string) bool) {
	if h == nil || strings.TrimSpace(userID) == "" {
		return
	}
	ev.UserID = userID
	if ev.At == "" {
		ev.At = time.Now().UTC().Format(time.RFC3339)
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("userId", userID).Msg("marshal event failed")
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, 8)
	for c, ctxID := range h.conns[userID] {
		if match(ctxID) {
			conns = append(conns, c)
		}
	}
	h.mu.Unlock()

	h.log.Debug().Str("userId", userID).Str("type", ev.Type).Int("subs", len(conns)).Msg("emit")
	for _, c := range conns {
		if err := websocket.Message.Send(c, string(msg)); err != nil {
			_ = c.Close()
			h.Remove(userID, c)
		}
	}
}
