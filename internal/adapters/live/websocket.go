package live

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/starchallenge/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	defaultSendBuffer = 256
)

// Client is a websocket connection registered with the broker.
type Client struct {
	id     string
	conn   *websocket.Conn
	broker *Broker
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	log    logger.Logger
}

// NewClient wraps an upgraded websocket connection.
func NewClient(conn *websocket.Conn, b *Broker, sendBuffer int) *Client {
	if sendBuffer < 1 {
		sendBuffer = defaultSendBuffer
	}
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		broker: b,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		log:    b.log,
	}
}

func (c *Client) ID() string { return c.id }

// Send queues msg for the write pump. The send channel is never closed, so a
// concurrent Close cannot make Send panic.
func (c *Client) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close stops the write pump, which then closes the socket.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// ReadPump dispatches client requests until the socket fails, then
// disconnects the client from the broker.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.broker.Disconnect(c.id)
		_ = c.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn(ctx, "websocket read failed", logger.String("connId", c.id), logger.Error(err))
			}
			return
		}
		c.broker.HandleMessage(ctx, c, message)
	}
}

// WritePump writes queued messages, one frame each, and keeps the socket alive with pings.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.writeClose()
			return
		case <-c.done:
			c.writeClose()
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug(ctx, "websocket write failed", logger.String("connId", c.id), logger.Error(err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

func (c *Client) writeClose() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Handler upgrades HTTP requests to live websocket clients.
type Handler struct {
	broker     *Broker
	upgrader   websocket.Upgrader
	sendBuffer int
}

// NewHandler returns a websocket endpoint. An empty allowedOrigins list or a
// "*" entry accepts any origin.
func NewHandler(b *Broker, allowedOrigins []string, sendBuffer int) *Handler {
	h := &Handler{broker: b, sendBuffer: sendBuffer}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[strings.ToLower(o)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.broker.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	client := NewClient(conn, h.broker, h.sendBuffer)
	if err := h.broker.Connect(client); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()))
		_ = conn.Close()
		return
	}

	// The request context ends when ServeHTTP returns, so pumps run under the broker's.
	ctx := h.broker.Context()
	go client.WritePump(ctx)
	go client.ReadPump(ctx)
}
