package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrSendTimeout is returned by Send when the outbound queue stayed full
	// for the whole send timeout.
	ErrSendTimeout = errors.New("ws: send timed out")

	// ErrConnClosed is returned by Send once the connection is closing.
	ErrConnClosed = errors.New("ws: connection closed")
)

// conn adapts a gorilla connection to hub.Conn. Outbound frames go through a
// bounded queue drained by writePump; all data writes happen on that goroutine.
type conn struct {
	ws          *websocket.Conn
	send        chan []byte
	sendTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once

	// closedByServer is set before done is closed when Close was called
	// locally, so readPump can tell our close from the peer's.
	mu             sync.Mutex
	closedByServer bool
}

func newConn(ws *websocket.Conn, buffer int, sendTimeout time.Duration) *conn {
	return &conn{
		ws:          ws,
		send:        make(chan []byte, buffer),
		sendTimeout: sendTimeout,
		done:        make(chan struct{}),
	}
}

// Send queues one text frame. It blocks for at most the send timeout.
func (c *conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
	}

	t := time.NewTimer(c.sendTimeout)
	defer t.Stop()
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-t.C:
		return ErrSendTimeout
	}
}

// Close sends a close frame with code and reason and stops the pumps.
// Only the first call has any effect.
func (c *conn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closedByServer = true
		c.mu.Unlock()

		msg := websocket.FormatCloseMessage(code, reason)
		err = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		close(c.done)
	})
	return err
}

// shutdown stops the pumps without a close frame, after the peer went away.
func (c *conn) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *conn) byServer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedByServer
}

// writePump drains the send queue and forwards frames to the socket. It also
// sends periodic pings. Runs in its own goroutine per connection.
func (c *conn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.shutdown()
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			return
		}
	}
}
