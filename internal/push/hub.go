package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"portfolioalerts/internal/logger"
	"portfolioalerts/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	pingPeriod  = 30 * time.Second
	pongWait    = 60 * time.Second
	writeWait   = 10 * time.Second
	sendBufSize = 16
)

// Subscriber yields raw event payloads. *cache.Subscriber satisfies it.
type Subscriber interface {
	ReceiveMessage(ctx context.Context) (string, error)
}

type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub keeps the open notification streams per user and forwards every
// NotificationEvent to the streams of the user that owns the alert.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]map[*client]struct{} // userID -> connections
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run forwards events from sub until ctx is cancelled or the subscription
// is closed.
func (h *Hub) Run(ctx context.Context, sub Subscriber) {
	logger.Log.Info("Starting to listen for notification events")

	for {
		payload, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.ErrClosed) {
				logger.Log.Info("Notification subscription closed")
				return
			}
			logger.Log.Error("Error receiving notification event", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var event models.NotificationEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			logger.Log.Error("Error unmarshaling notification event", zap.Error(err))
			continue
		}

		h.Publish(event)
	}
}

// Publish delivers an event to every stream of event.UserID. Slow streams
// drop the event rather than block the hub.
func (h *Hub) Publish(event models.NotificationEvent) int {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("Failed to marshal notification event", zap.Error(err))
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.clients[event.UserID] {
		select {
		case c.send <- data:
			delivered++
		default:
			logger.Log.Warn("Notification event dropped due to slow client",
				zap.String("client_id", c.id),
				zap.String("user_id", c.userID),
			)
		}
	}
	return delivered
}

// Connections reports the number of open streams for a user.
func (h *Hub) Connections(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// ServeUser upgrades the request and streams events to it until the peer
// goes away.
func (h *Hub) ServeUser(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("Notification stream upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:     uuid.New().String(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	conns, ok := h.clients[c.userID]
	if !ok {
		conns = make(map[*client]struct{})
		h.clients[c.userID] = conns
	}
	conns[c] = struct{}{}
	total := len(conns)
	h.mu.Unlock()

	logger.Log.Info("Notification stream connected",
		zap.String("client_id", c.id),
		zap.String("user_id", c.userID),
		zap.Int("user_streams", total),
	)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if conns, ok := h.clients[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.userID)
		}
	}
	close(c.send)
	h.mu.Unlock()

	logger.Log.Info("Notification stream disconnected",
		zap.String("client_id", c.id),
		zap.String("user_id", c.userID),
	)
}

// readPump discards inbound frames and returns when the connection closes.
func (c *client) readPump() {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
