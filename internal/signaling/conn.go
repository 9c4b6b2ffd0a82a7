package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/telepeer/internal/util"
)

// Handler receives the events of one signaling channel. Serve invokes it from
// a single goroutine.
type Handler interface {
	HandleOpen()
	HandleMessage(msg Message)
	HandleError(err error)
}

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("signaling channel closed")

// Conn is a signaling channel over a single WebSocket connection. Writes are
// serialized; reads happen only inside Serve.
type Conn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	closed atomic.Bool
}

// NewConn wraps an established WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Dial connects to the signaling endpoint at url.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return NewConn(ws), nil
}

// Send writes a message as one JSON text frame.
func (c *Conn) Send(msg Message) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

// Serve reports the channel as open, then feeds every inbound frame to h
// until the connection fails, is closed, or ctx is cancelled. Malformed
// frames are logged and skipped. A read failure is reported through
// h.HandleError and returned; orderly shutdown returns nil.
func (c *Conn) Serve(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	h.HandleOpen()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Load() || ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				util.LogInfo("signaling channel closed by peer")
				return nil
			}
			err = fmt.Errorf("failed to read WS message: %w", err)
			h.HandleError(err)
			return err
		}

		msg, err := Decode(data)
		if err != nil {
			util.LogWarning("dropping signaling frame: %v", err)
			continue
		}
		util.LogDebug("ws <- %s", msg.Type)
		h.HandleMessage(msg)
	}
}

// Close sends a close frame (best effort) and closes the connection.
// Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}
