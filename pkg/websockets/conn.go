// Package websockets pushes session updates to browser clients.
package websockets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = 30 * time.Second
	sendBuffer          = 16
)

var (
	// ErrClosed is returned by Send after the connection has ended.
	ErrClosed = errors.New("websocket connection closed")
	// ErrSlowClient is returned by Send when the outgoing queue is full.
	ErrSlowClient = errors.New("websocket client is not reading")
)

// Conn wraps one client connection with a write pump and a read pump.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	log          *zap.Logger

	mu      sync.Mutex
	closed  bool
	send    chan []byte
	written chan struct{}
}

// NewConn wraps an upgraded connection.
func NewConn(ws *websocket.Conn, writeTimeout time.Duration, log *zap.Logger) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		log:          log,
		send:         make(chan []byte, sendBuffer),
		written:      make(chan struct{}),
	}
}

// Send enqueues msg without blocking.
func (c *Conn) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSlowClient
	}
}

// Serve runs stream until it returns or the client goes away, then flushes
// queued messages and closes the connection. The context given to stream is
// cancelled when the client disconnects.
func (c *Conn) Serve(ctx context.Context, stream func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.readPump(cancel)
	go c.writePump(cancel)

	err := stream(ctx)

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	<-c.written
	return err
}

// readPump discards client frames; it exists to notice disconnects and pongs.
func (c *Conn) readPump(cancel context.CancelFunc) {
	defer cancel()
	c.ws.SetReadLimit(4 << 10)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Info("connection read closed", zap.Error(err))
			}
			return
		}
	}
}

func (c *Conn) writePump(cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		cancel()
		close(c.written)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.log.Info("connection write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}
