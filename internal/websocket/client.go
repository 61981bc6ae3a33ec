package websocket

import (
	"context"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	feedBuffer   = 16
	keepalive    = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// Client is one admin watching the event feed.
type Client struct {
	hub     *Hub
	conn    *ws.Conn
	admin   string
	events  chan Event
	dropped atomic.Int64
}

// NewClient ties conn to hub. admin is the public id of the watching
// principal and is only used for logging.
func NewClient(hub *Hub, conn *ws.Conn, admin string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		admin:  admin,
		events: make(chan Event, feedBuffer),
	}
}

// Run subscribes the client and streams events until the connection or ctx
// ends. Inbound frames are discarded.
func (c *Client) Run(ctx context.Context) {
	ctx = c.conn.CloseRead(ctx)

	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			if err := c.write(ctx, ev); err != nil {
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) write(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, ev)
}

// offer queues ev without blocking and reports whether it was accepted.
func (c *Client) offer(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}
