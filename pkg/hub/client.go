package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4 * 1024 // Dashboards only send pongs and close frames.
	sendBuffer     = 256
)

// Conn is the subset of a websocket connection a Client needs.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Client is one connected dashboard.
type Client struct {
	hub   *Hub
	conn  Conn
	send  chan Message
	kinds map[string]bool // nil receives every kind
	first []Message
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// Subscribe limits broadcasts to the given envelope kinds. Messages without a
// kind are always delivered.
func Subscribe(kinds ...string) ClientOption {
	return func(c *Client) {
		if len(kinds) == 0 {
			return
		}
		c.kinds = make(map[string]bool, len(kinds))
		for _, k := range kinds {
			c.kinds[k] = true
		}
	}
}

// Initial queues msgs ahead of any broadcast, so a dashboard starts from a
// snapshot. They bypass the subscription filter.
func Initial(msgs ...Message) ClientOption {
	return func(c *Client) { c.first = append(c.first, msgs...) }
}

// NewClient registers a client with the hub. After the hub stops, the client
// is created closed and Run returns once the connection notices.
func NewClient(hub *Hub, conn Conn, opts ...ClientOption) *Client {
	c := &Client{hub: hub, conn: conn}
	for _, opt := range opts {
		opt(c)
	}
	c.send = make(chan Message, sendBuffer+len(c.first))
	for _, m := range c.first {
		c.send <- m
	}
	c.first = nil

	select {
	case hub.register <- c:
	case <-hub.done:
		close(c.send)
	}
	return c
}

func (c *Client) wants(m Message) bool {
	return c.kinds == nil || m.Kind == "" || c.kinds[m.Kind]
}

// Run blocks until the connection closes or the hub stops.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump owns all writes to the connection.
func (c *Client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var err error
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, []byte{})
				return
			}
			err = c.write(frameType(msg.Type), msg.Data)
		case <-ping.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(mt int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(mt, data)
}

func frameType(t MessageType) int {
	if t == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
