package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// The read API is public; the realtime channel follows suit
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// clientMessage is what subscribers send; only subscribe_user is defined
type clientMessage struct {
	Op     string `json:"op"`
	UserID string `json:"user_id"`
}

// Client is one connected realtime subscriber
type Client struct {
	ID       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	subjects map[string]struct{}
	logger   *zap.Logger
	closer   sync.Once
}

// ServeWS upgrades the request and runs the client's read/write pumps
func ServeWS(hub *Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		c := &Client{
			ID:       uuid.NewString(),
			hub:      hub,
			conn:     conn,
			send:     make(chan []byte, sendBuffer),
			subjects: make(map[string]struct{}),
			logger:   logger,
		}

		if err := hub.register(c); err != nil {
			conn.Close()
			return
		}
		logger.Info("client connected", zap.String("client_id", c.ID))

		go c.writePump()
		go c.readPump()
	}
}

// readPump consumes subscribe messages until the connection drops. A
// disconnected client is removed from all groups and never retried.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
		c.logger.Info("client disconnected", zap.String("client_id", c.ID))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if msg.Op == "subscribe_user" && msg.UserID != "" {
			if err := c.hub.Subscribe(c, msg.UserID); err != nil {
				return
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// close shuts the send channel exactly once, which lets writePump finish
// and close the underlying connection.
func (c *Client) close() {
	c.closer.Do(func() { close(c.send) })
}
