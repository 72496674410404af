package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/broadcast"
	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
	"github.com/JakeFAU/sitemap-frontier/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 32
)

// Registrar records connection lifecycle. broadcast.Gateway satisfies it.
type Registrar interface {
	Register(ctx context.Context, id string) error
	Unregister(ctx context.Context, id string) error
}

// StatusMessage acknowledges an inbound client message.
type StatusMessage struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	Timestamp    int64  `json:"timestamp"`
	ConnectionID string `json:"connectionId"`
}

// Hub tracks websocket connections opened on this process and delivers
// broadcast payloads to them.
type Hub struct {
	ids      crawler.IDGenerator
	logger   *zap.Logger
	now      func() time.Time
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// NewHub constructs an empty Hub.
func NewHub(ids crawler.IDGenerator, clock crawler.Clock, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &Hub{
		ids:    ids,
		logger: logger.Named("realtime_hub"),
		now:    now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Post queues data for the connection. A connection this hub never held
// yields broadcast.ErrNotHeld, a closing one broadcast.ErrGone, and a full
// send buffer is a transient failure.
func (h *Hub) Post(ctx context.Context, connectionID string, data []byte) error {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s: %w", connectionID, broadcast.ErrNotHeld)
	}
	// A closed client may still have buffer room; check done on its own so
	// the send case cannot win the race.
	select {
	case <-c.done:
		return fmt.Errorf("connection %s: %w", connectionID, broadcast.ErrGone)
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("connection %s: send buffer full", connectionID)
	}
}

// Len reports the number of open connections on this process.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler upgrades requests to websockets and records each connection with reg.
func (h *Hub) Handler(reg Registrar) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.ids.NewID()
		if err != nil {
			h.logger.Error("failed to generate connection id", zap.Error(err))
			http.Error(w, "failed to connect", http.StatusInternalServerError)
			return
		}
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		c := &client{id: id, conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}

		h.mu.Lock()
		h.clients[id] = c
		h.mu.Unlock()
		metrics.IncWebsocketConnections()

		// The request context ends when the handler returns; lifecycle calls
		// outlive it.
		ctx := context.WithoutCancel(r.Context())
		if err := reg.Register(ctx, id); err != nil {
			h.logger.Error("failed to register connection", zap.String("connection_id", id), zap.Error(err))
			h.drop(c)
			_ = conn.Close()
			return
		}

		go h.writePump(c)
		h.readPump(c)

		h.drop(c)
		if err := reg.Unregister(ctx, id); err != nil {
			h.logger.Error("failed to unregister connection", zap.String("connection_id", id), zap.Error(err))
		}
	})
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		metrics.DecWebsocketConnections()
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, body, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("connection_id", c.id), zap.Error(err))
			}
			return
		}
		h.logger.Debug("received message", zap.String("connection_id", c.id), zap.Int("bytes", len(body)))
		ack, err := json.Marshal(StatusMessage{
			Type:         "status",
			Message:      "Message received",
			Timestamp:    h.now().Unix(),
			ConnectionID: c.id,
		})
		if err != nil {
			continue
		}
		select {
		case c.send <- ack:
		default:
			h.logger.Warn("dropping status echo; send buffer full", zap.String("connection_id", c.id))
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					h.logger.Warn("websocket write failed", zap.String("connection_id", c.id), zap.Error(err))
				}
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.close()
	}
}
