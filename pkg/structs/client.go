package structs

import (
	"sync"
)

// Conn is the part of a websocket connection the relay writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// TextMessage mirrors websocket.TextMessage so structs does not depend on a
// particular websocket implementation.
const TextMessage = 1

const sendBuffer = 64

// Client is one transport handle. A session may be reachable through
// different clients over its lifetime.
type Client struct {
	Conn      Conn
	ID        string // connection id (ULID)
	Remote    string
	SessionID string // set by identify; owned by the event loop
	Mux       *sync.RWMutex

	send    chan []byte
	closed  bool
	channel func([]byte) error // data channel writer while one is open
	done    chan struct{}
}

// NewClient wraps a connection. Pump must be running for queued messages to
// reach the connection.
func NewClient(conn Conn, id string) *Client {
	return &Client{
		Conn: conn,
		ID:   id,
		Mux:  &sync.RWMutex{},
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Enqueue queues an encoded message. It returns false if the client is closed
// or its buffer is full; the message is dropped in both cases.
func (c *Client) Enqueue(data []byte) bool {
	c.Mux.RLock()
	defer c.Mux.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Pump writes queued messages to the connection until the client is closed.
func (c *Client) Pump() {
	defer close(c.done)
	for data := range c.send {
		if err := c.Conn.WriteMessage(TextMessage, data); err != nil {
			return
		}
	}
}

// Close stops the writer after the queued messages are flushed. It is safe to
// call more than once.
func (c *Client) Close() {
	c.Mux.Lock()
	defer c.Mux.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.channel = nil
	close(c.send)
}

// Done is closed once Pump has returned.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// SetChannel installs (or with nil, removes) the data channel writer.
func (c *Client) SetChannel(write func([]byte) error) {
	c.Mux.Lock()
	defer c.Mux.Unlock()
	if c.closed {
		return
	}
	c.channel = write
}

// Channel returns the data channel writer, or nil when none is open.
func (c *Client) Channel() func([]byte) error {
	c.Mux.RLock()
	defer c.Mux.RUnlock()
	return c.channel
}
