package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/oops"
)

// Sentinel errors callers branch on when a send fails.
var (
	ErrSendBufferFull = oops.Errorf("ws: send buffer full")
	ErrConnClosed     = oops.Errorf("ws: connection closed")
)

// Conn wraps one robot websocket. Outbound text goes through a buffered
// send channel drained by a single write pump that owns the socket, so
// SendText never blocks: a full buffer or a closed connection is an error
// the caller treats as an isolated per-connection delivery failure.
type Conn struct {
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	rawAddr string
}

func newConn(ws *websocket.Conn, sendBuffer int) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Conn{
		ws:      ws,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		rawAddr: "/" + ws.RemoteAddr().String(),
	}
}

// RawAddr is the raw address string handed to the identity resolver. The
// remote address is prefixed with "/" so it carries the host/ip:port shape
// the resolver parses.
func (c *Conn) RawAddr() string {
	return c.rawAddr
}

// SendText queues one text frame for the write pump.
func (c *Conn) SendText(text string) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- []byte(text):
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// writePump owns the socket for writes: queued frames plus ping
// keep-alive. It exits, closing the connection, on the first write error
// or when the connection is closed.
func (c *Conn) writePump(pingInterval, writeWait time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
