package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/deckmatch/lobbyd/internal/config"
	"github.com/deckmatch/lobbyd/internal/lobby"
)

// Conn wraps a WebSocket connection with an opaque identity and a buffered
// outbound queue drained by a dedicated write pump. It implements
// lobby.Conn.
type Conn struct {
	id     lobby.ConnID
	sock   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger

	writeTimeout time.Duration
	pingInterval time.Duration
	pongTimeout  time.Duration
	readLimit    int64
}

// newConn wraps an upgraded WebSocket connection, minting a fresh
// connection id.
//
// Precondition: sock must be open; sendBuffer must be >= 1.
func newConn(sock *websocket.Conn, cfg config.WebSocketConfig, sendBuffer int, logger *zap.Logger) *Conn {
	return &Conn{
		id:           lobby.ConnID(uuid.NewString()),
		sock:         sock,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		logger:       logger,
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		readLimit:    cfg.ReadLimit,
	}
}

// ID returns the opaque connection identifier.
func (c *Conn) ID() lobby.ConnID { return c.id }

// Send enqueues one outbound text frame without blocking.
//
// Postcondition: Returns an error when the connection is closed or the
// outbound buffer is full; the frame is dropped in either case.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection %s is closed", c.id)
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("connection %s send buffer full", c.id)
	}
}

// Close tears the connection down. Idempotent; the read pump observes the
// closed socket and reports the disconnect upstream.
func (c *Conn) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
	return nil
}

// writePump drains the send queue onto the socket and emits keepalive
// pings. It owns all writes; nothing else may write to the socket.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed",
					zap.String("conn_id", string(c.id)),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			// Best effort close frame; the socket may already be gone.
			_ = c.sock.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.sock.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump reads frames until the connection dies, forwarding text frames
// to the handler. Pongs extend the read deadline; a silent peer times out.
func (c *Conn) readPump(handler Handler) {
	defer func() {
		_ = c.Close()
	}()

	c.sock.SetReadLimit(c.readLimit)
	_ = c.sock.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	for {
		msgType, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("read failed",
					zap.String("conn_id", string(c.id)),
					zap.Error(err),
				)
			}
			return
		}
		// Inbound traffic counts as liveness alongside pongs.
		_ = c.sock.SetReadDeadline(time.Now().Add(c.pongTimeout))

		if msgType == websocket.TextMessage {
			handler.HandleFrame(c.id, data)
		}
	}
}
