// network/connection.go
package network

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is one inbound frame: {"event": "...", "data": ...}.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// DefaultSendBuffer is the outbound queue length when Options leaves it unset.
const DefaultSendBuffer = 64

var (
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
)

type Connection interface {
	Send(event string, payload any) error
	ReadMessage() (*Message, error)
	Close() error
	RemoteAddr() net.Addr
}

// Options tunes keepalive and limits. Zero values disable the matching feature.
type Options struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// WSConnection queues outbound frames for a single writer goroutine, so Send
// never waits on the peer.
type WSConnection struct {
	conn      *websocket.Conn
	opts      Options
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewWSConnection(conn *websocket.Conn, opts Options) *WSConnection {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	c := &WSConnection{
		conn: conn,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
	if opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}
	if opts.PongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		})
	}
	go c.writePump()
	return c
}

// Send queues one event as a JSON text frame. A full queue drops the frame
// and returns ErrSendBufferFull. Safe for concurrent use.
func (c *WSConnection) Send(event string, payload any) error {
	data, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// ReadMessage blocks for the next text frame. Binary frames are skipped.
// A frame that is not a valid envelope yields a Message with an empty Event.
func (c *WSConnection) ReadMessage() (*Message, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return &Message{}, nil
		}
		return &msg, nil
	}
}

// writePump is the only writer on conn. A failed write closes the connection,
// which ends the read loop.
func (c *WSConnection) writePump() {
	var ping <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case data := <-c.send:
			if c.opts.WriteWait > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-ping:
			deadline := time.Now().Add(c.opts.PingInterval)
			if c.opts.WriteWait > 0 {
				deadline = time.Now().Add(c.opts.WriteWait)
			}
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *WSConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
