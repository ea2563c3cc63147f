package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/timem/internal/identity"
)

const writeTimeout = 5 * time.Second

// Hub tracks websocket connections per user and fans messages out to them.
type Hub struct {
	mu             sync.RWMutex
	active         map[string]map[*websocket.Conn]struct{}
	allowedOrigins []string
	logger         *slog.Logger
}

// NewHub creates a hub. An empty origin list or "*" accepts any origin.
func NewHub(allowedOrigins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		active:         make(map[string]map[*websocket.Conn]struct{}),
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// Register adds a connection for a user.
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[*websocket.Conn]struct{})
	}
	h.active[userID][conn] = struct{}{}
	h.logger.Info("Notification subscriber registered", "user_id", userID, "connections", len(h.active[userID]))
}

// Unregister removes a connection for a user.
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.active[userID]; ok {
		if _, exists := conns[conn]; exists {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(h.active, userID)
			}
			h.logger.Info("Notification subscriber unregistered", "user_id", userID)
		}
	}
}

// Online reports whether userID has at least one connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID]) > 0
}

func (h *Hub) connections(userID string) []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*websocket.Conn, 0, len(h.active[userID]))
	for c := range h.active[userID] {
		conns = append(conns, c)
	}
	return conns
}

// SendMessage delivers text to every connection of userID. It succeeds when
// at least one connection accepted the frame.
func (h *Hub) SendMessage(ctx context.Context, userID, text string) error {
	return h.broadcast(ctx, userID, Event{Type: EventMessage, Content: text})
}

// SendTypingIndicator tells the user's clients that a reply is being prepared.
func (h *Hub) SendTypingIndicator(ctx context.Context, chatID string) error {
	return h.broadcast(ctx, chatID, Event{Type: EventTyping})
}

func (h *Hub) broadcast(ctx context.Context, userID string, ev Event) error {
	conns := h.connections(userID)
	if len(conns) == 0 {
		return fmt.Errorf("%w: %s", ErrNoSubscribers, userID)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var errs []error
	delivered := 0
	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.logger.Debug("WebSocket write error", "user_id", userID, "error", err)
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("deliver %s to %s: %w", ev.Type, userID, errors.Join(errs...))
	}
	return nil
}

// ServeHTTP upgrades the request and keeps the connection subscribed until
// the client leaves. Identity comes from identity.Middleware.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "missing chat id", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "subscription ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.Register(userID, ws)
	defer h.Unregister(userID, ws)

	h.readLoop(r.Context(), ws, userID)
}

// readLoop answers pings and returns when the client disconnects.
func (h *Hub) readLoop(ctx context.Context, ws *websocket.Conn, userID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				h.logger.Debug("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil {
			continue
		}
		if ev.Type == "ping" {
			data, _ := json.Marshal(Event{Type: EventPong})
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			if err := ws.Write(writeCtx, websocket.MessageText, data); err != nil {
				h.logger.Debug("Failed to send pong", "error", err)
			}
			cancel()
		}
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin)
	return false
}

var (
	_ Notifier = (*Hub)(nil)
	_ Presence = (*Hub)(nil)
)
