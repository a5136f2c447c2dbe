package signal

import (
	"sync"
	"time"

	"huddle/pkg/utils"

	"github.com/gorilla/websocket"
)

// Conn wraps a websocket transport with a serialized write path. Gorilla
// permits one concurrent writer only; every fan-out path goes through Send.
type Conn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		id:           utils.GenerateConnectionID(),
		ws:           ws,
		writeTimeout: writeTimeout,
	}
}

// ID identifies this transport instance; reconnects produce a new ID.
func (c *Conn) ID() string {
	return c.id
}

// Send writes a JSON message under the write lock with a deadline.
func (c *Conn) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return websocket.ErrCloseSent
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteJSON(v)
}

// Ping sends a websocket ping control frame.
func (c *Conn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return websocket.ErrCloseSent
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

// Close tears down the transport. Safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		c.ws.Close()
	}
}
