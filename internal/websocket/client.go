// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/ridecharts/internal/logging"
	"github.com/tomtom215/ridecharts/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// clientIDCounter hands out increasing ids; the hub broadcasts in id order.
var clientIDCounter atomic.Uint64

// Client connects one WebSocket peer to the Hub. The hub owns send and
// closes it on unregister. pongs is private to the client: the read side
// queues replies there so it never writes to a channel the hub may close.
// since is only touched by the hub goroutine.
type Client struct {
	id       uint64
	hub      *Hub
	conn     *websocket.Conn
	send     chan Message
	pongs    chan struct{}
	snapshot func() (Message, uint64)
	since    uint64
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:    clientIDCounter.Add(1),
		hub:   hub,
		conn:  conn,
		send:  make(chan Message, sendBuffer),
		pongs: make(chan struct{}, 1),
	}
}

func (c *Client) ID() uint64 { return c.id }

// SetSnapshot sets the function the hub calls when registering c. It
// returns the client's first message and the state version that message
// reflects. Must be called before registration.
func (c *Client) SetSnapshot(fn func() (Message, uint64)) {
	c.snapshot = fn
}

// Start runs the read and write loops in their own goroutines.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump drains frames until the connection fails, then unregisters.
// A ping message is the only frame a client is expected to send.
func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	if err := extend(""); err != nil {
		logging.Error().Err(err).Uint64("client_id", c.id).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(extend)

	for {
		var in Message
		err := c.conn.ReadJSON(&in)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				metrics.WSErrors.WithLabelValues("read").Inc()
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("WebSocket closed unexpectedly")
			}
			return
		}
		if in.Type != MessageTypePing {
			continue
		}
		select {
		case c.pongs <- struct{}{}:
		default: // a pong is already pending
		}
	}
}

// writePump is the only goroutine that writes to conn.
func (c *Client) writePump() {
	keepalive := time.NewTicker(pingPeriod)
	defer func() {
		keepalive.Stop()
		_ = c.conn.Close()
	}()

	for {
		var err error
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			err = c.writeMessage(msg)
		case <-c.pongs:
			err = c.writeMessage(Message{Type: MessageTypePong})
		case <-keepalive.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			metrics.WSErrors.WithLabelValues("write").Inc()
			logging.Debug().Err(err).Uint64("client_id", c.id).Msg("WebSocket write failed")
			return
		}
	}
}

// writeMessage encodes and writes msg. An unencodable message is logged and
// skipped without dropping the connection.
func (c *Client) writeMessage(msg Message) error {
	data, err := MarshalMessage(msg)
	if err != nil {
		metrics.WSErrors.WithLabelValues("marshal").Inc()
		logging.Error().Err(err).Str("message_type", msg.Type).Msg("Failed to marshal WebSocket message")
		return nil
	}
	return c.write(websocket.TextMessage, data)
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
