package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/asistente-auditoria/widget/domain"
	"github.com/asistente-auditoria/widget/usecase"
	"github.com/asistente-auditoria/widget/utils/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 16 * 1024 * 1024 // uploads travel base64 encoded
)

// Client is one browser connection bound to one conversation session.
type Client struct {
	conn     *websocket.Conn
	session  *usecase.Session
	commands <-chan domain.Message
	limiter  *rate.Limiter
	send     chan []byte
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	closed   bool
}

// NewClient wires a connection to its session. commands is the session's
// subscription on the broker.
func NewClient(ctx context.Context, conn *websocket.Conn, session *usecase.Session, commands <-chan domain.Message, limiter *rate.Limiter) *Client {
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		conn:     conn,
		session:  session,
		commands: commands,
		limiter:  limiter,
		send:     make(chan []byte, 256),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Client) Run() {
	c.setupHandlers()

	go c.readPump()
	go c.writePump()
	go c.forwardCommands()
}

func (c *Client) setupHandlers() {
	c.conn.SetCloseHandler(func(code int, text string) error {
		log.WithCtx(c.ctx).Debug("WebSocket connection closed", zap.Int("code", code), zap.String("text", text))
		c.Close()
		return nil
	})

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// Close gracefully closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// IsClosed returns true if the client connection is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Context is cancelled when the connection goes away; the session runs
// under it.
func (c *Client) Context() context.Context {
	return c.ctx
}

func (c *Client) SessionID() string {
	return c.session.ID()
}

// readPump turns inbound frames into session events.
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithCtx(c.ctx).Error("WebSocket error", zap.Error(err))
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			log.WithCtx(c.ctx).Warn("Frame dropped by rate limiter")
			_ = c.SendMessage(encodeError("rate_limited", "Demasiadas solicitudes, inténtelo de nuevo en unos segundos.", ""))
			continue
		}

		ev, err := DecodeEvent(message)
		if err != nil {
			log.WithCtx(c.ctx).Debug("Rejected frame", zap.Error(err))
			_ = c.SendMessage(encodeError("invalid_frame", "Mensaje no válido.", err.Error()))
			continue
		}

		if err := c.session.Post(c.ctx, ev); err != nil {
			log.WithCtx(c.ctx).Debug("Session no longer accepts events", zap.Error(err))
			return
		}
	}
}

// forwardCommands relays the session's command envelopes to the socket.
func (c *Client) forwardCommands() {
	for {
		select {
		case msg, ok := <-c.commands:
			if !ok {
				c.Close()
				return
			}
			if err := c.SendMessage(msg.Payload); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// writePump is the only writer of data frames and pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.WithCtx(c.ctx).Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.WithCtx(c.ctx).Debug("Failed to send ping", zap.Error(err))
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// SendMessage queues a frame for the client
func (c *Client) SendMessage(message []byte) error {
	if c.IsClosed() {
		return websocket.ErrCloseSent
	}

	select {
	case c.send <- message:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		// Slow reader: drop the connection rather than the commands.
		c.Close()
		return websocket.ErrCloseSent
	}
}
