package ws

import (
	"sync"
	"time"
)

// Socket is the part of a websocket connection the relay drives.
// *websocket.Conn satisfies it.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one authenticated live connection.
type Client struct {
	id          string
	userID      string
	sock        Socket
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	connectedAt time.Time
}

func newClient(id, userID string, sock Socket, buffer int) *Client {
	return &Client{
		id:          id,
		userID:      userID,
		sock:        sock,
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
		connectedAt: time.Now().UTC(),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Deliver queues a frame without blocking. It reports false when the client
// is closed or its queue is full; a full queue closes the client.
func (c *Client) Deliver(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		c.Close()
		return false
	}
}

// Close is safe to call any number of times from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
