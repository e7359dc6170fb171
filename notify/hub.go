package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"scriptrelay/presence"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// envelope is the wire frame pushed to websocket clients.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to the live websocket connections of each user and
// feeds connection liveness into the presence tracker. A user may hold
// several connections at once; each gets every event.
type Hub struct {
	presence presence.Tracker
	logger   *slog.Logger

	mu    sync.RWMutex
	conns map[string]map[*wsClient]struct{}
}

func NewHub(tracker presence.Tracker, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		presence: tracker,
		logger:   logger,
		conns:    make(map[string]map[*wsClient]struct{}),
	}
}

// Register adopts an upgraded connection for userID and blocks until the
// connection closes. The caller performs the HTTP upgrade and auth.
func (h *Hub) Register(ctx context.Context, userID string, conn *websocket.Conn) {
	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*wsClient]struct{})
	}
	h.conns[userID][c] = struct{}{}
	h.mu.Unlock()

	if err := h.presence.Heartbeat(ctx, userID); err != nil {
		h.logger.Warn("presence heartbeat failed", "user_id", userID, "error", err)
	}

	go h.writePump(userID, c)
	h.readPump(ctx, userID, c)
}

// Publish implements Sink: it marshals the event for every live connection of
// the user. A user with no open connection is not an error; other sinks and
// the outbox retry budget cover them.
func (h *Hub) Publish(_ context.Context, userID, eventType string, payload []byte) error {
	frame, err := json.Marshal(envelope{Type: eventType, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		select {
		case c.send <- frame:
		default:
			// Slow consumer; drop the frame rather than block the dispatcher.
			h.logger.Warn("dropping frame for slow websocket consumer", "user_id", userID, "type", eventType)
		}
	}
	return nil
}

func (h *Hub) readPump(ctx context.Context, userID string, c *wsClient) {
	defer h.unregister(ctx, userID, c)

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := h.presence.Heartbeat(ctx, userID); err != nil {
			h.logger.Warn("presence heartbeat failed", "user_id", userID, "error", err)
		}
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(userID string, c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregister(ctx context.Context, userID string, c *wsClient) {
	h.mu.Lock()
	delete(h.conns[userID], c)
	last := len(h.conns[userID]) == 0
	if last {
		delete(h.conns, userID)
	}
	h.mu.Unlock()

	close(c.send)
	c.conn.Close()

	if last {
		if err := h.presence.Offline(ctx, userID); err != nil {
			h.logger.Warn("presence offline failed", "user_id", userID, "error", err)
		}
	}
}
