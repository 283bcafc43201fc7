package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rowbase/rowbase/domain/realtime"
	"github.com/rowbase/rowbase/pkg/respond"
	"github.com/rowbase/rowbase/ports"
)

var errClientGone = errors.New("websocket client gone")

// client is one live connection. The fan-out pushes envelopes through Send;
// the write pump serializes everything onto the socket.
type client struct {
	id   string
	sock *websocket.Conn

	outbound chan any
	done     chan struct{}
	once     sync.Once
}

func newClient(id string, sock *websocket.Conn) *client {
	return &client{
		id:       id,
		sock:     sock,
		outbound: make(chan any, 32),
		done:     make(chan struct{}),
	}
}

// ID implements ports.Subscriber.
func (c *client) ID() string { return c.id }

// Send implements ports.Subscriber. It never blocks: a closed connection or
// a full buffer (a consumer too slow to keep up) is a send failure, which
// the fan-out treats as a dead subscriber.
func (c *client) Send(env realtime.Envelope) error {
	select {
	case <-c.done:
		return errClientGone
	default:
	}
	select {
	case c.outbound <- env:
		return nil
	default:
		return errClientGone
	}
}

// sendError queues an error frame for the client; drops it if the buffer
// is full.
func (c *client) sendError(code, message string) {
	body := respond.ErrorBody{Error: respond.ErrorDetail{Code: code, Message: message}}
	select {
	case c.outbound <- body:
	default:
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// writePump owns the write side: queued frames plus keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case <-c.done:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			c.sock.WriteMessage(websocket.CloseMessage, nil)
			return
		case msg := <-c.outbound:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

var _ ports.Subscriber = (*client)(nil)
