// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package websocket

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ridecharts/internal/events"
	"github.com/tomtom215/ridecharts/internal/logging"
	"github.com/tomtom215/ridecharts/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types sent to or accepted from clients. Chart state changes use
// the event type (charts.loaded, charts.cleared, charts.failed) as-is.
const (
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
	MessageTypeSnapshot = "charts.snapshot"
)

// Message is one WebSocket frame. seq carries the Seq of the event it
// forwards and is never encoded; 0 means the message is always delivered.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	seq  uint64
}

// Hub fans chart messages out to every connected client. Only the
// RunWithContext goroutine mutates the client set; mu guards it for
// readers such as GetClientCount. done is closed once the hub has stopped.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// RegisterClient hands c to the hub and reports false when the hub has
// already stopped. It blocks until the hub accepts c.
func (h *Hub) RegisterClient(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient removes c. It returns at once when the hub has stopped,
// since stopping already closed every client.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// Done is closed when RunWithContext returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// RunWithContext serves the hub until ctx ends, then closes every client
// and returns ctx.Err(). Pending registrations are handled before any
// broadcast so a client registered ahead of a message receives it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return h.stop(ctx)
		}
		if h.handleLifecycle() {
			continue
		}
		select {
		case <-ctx.Done():
			return h.stop(ctx)
		case c := <-h.Register:
			h.register(c)
		case c := <-h.Unregister:
			h.unregister(c)
		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

// handleLifecycle processes one waiting register or unregister, if any.
func (h *Hub) handleLifecycle() bool {
	select {
	case c := <-h.Register:
		h.register(c)
	case c := <-h.Unregister:
		h.unregister(c)
	default:
		return false
	}
	return true
}

// register adds c and, when c carries a snapshot, queues it as c's first
// message. The snapshot is taken here, on the hub goroutine, so every
// broadcast handled afterwards is either newer than the snapshot and
// delivered, or already reflected in it and skipped.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	if c.snapshot != nil {
		msg, version := c.snapshot()
		c.since = version
		select {
		case c.send <- msg:
			metrics.WSMessagesSent.Inc()
		default:
			logging.Warn().Uint64("client_id", c.id).Msg("WebSocket snapshot dropped, client buffer full")
		}
	}

	metrics.WSConnections.Set(float64(n))
	logging.Info().Uint64("client_id", c.id).Int("total_clients", n).Msg("WebSocket client connected")
}

// unregister is a no-op for clients already dropped.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, known := h.clients[c]
	if known {
		h.drop(c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if known {
		metrics.WSConnections.Set(float64(n))
		logging.Info().Uint64("client_id", c.id).Int("total_clients", n).Msg("WebSocket client disconnected")
	}
}

// drop closes c's send channel and forgets it. Caller holds mu.
func (h *Hub) drop(c *Client) {
	close(c.send)
	delete(h.clients, c)
}

// stop closes every client and done, and logs why the hub ended.
func (h *Hub) stop(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	n := len(h.clients)
	for _, c := range h.ordered() {
		h.drop(c)
	}
	h.mu.Unlock()
	metrics.WSConnections.Set(0)

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", n).
		Msg("WebSocket hub stopped")
	return ctx.Err()
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// ordered returns clients by ascending id. Caller holds mu.
func (h *Hub) ordered() []*Client {
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Client) int { return cmp.Compare(a.id, b.id) })
	return out
}

// broadcastToClients delivers msg in client id order, skipping clients
// whose snapshot already covers msg.seq. A client whose buffer is full is
// dropped rather than allowed to stall the others.
func (h *Hub) broadcastToClients(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	dropped := 0
	for _, c := range h.ordered() {
		if msg.seq != 0 && msg.seq <= c.since {
			continue
		}
		select {
		case c.send <- msg:
			metrics.WSMessagesSent.Inc()
		default:
			h.drop(c)
			dropped++
		}
	}
	if dropped == 0 {
		return
	}
	metrics.WSErrors.WithLabelValues("slow_client").Add(float64(dropped))
	metrics.WSConnections.Set(float64(len(h.clients)))
	logging.Warn().Int("dropped", dropped).Str("message_type", msg.Type).Msg("Dropped slow WebSocket clients")
}

// Broadcast queues a message for all clients. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Broadcast(messageType string, data any) {
	h.enqueue(Message{Type: messageType, Data: data})
}

// BroadcastEvent forwards a chart event to all clients, typed by the event
// type. Clients whose snapshot is at or past ev.Seq do not receive it.
func (h *Hub) BroadcastEvent(ev events.Event) {
	h.enqueue(Message{Type: ev.Type, Data: ev, seq: ev.Seq})
}

func (h *Hub) enqueue(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		metrics.WSErrors.WithLabelValues("broadcast_full").Inc()
		logging.Warn().Str("message_type", msg.Type).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastRaw decodes an encoded events.Event and broadcasts it.
func (h *Hub) BroadcastRaw(data []byte) {
	ev, err := events.Decode(data)
	if err != nil {
		metrics.WSErrors.WithLabelValues("decode").Inc()
		logging.Warn().Err(err).Msg("failed to decode event for broadcast")
		return
	}
	h.BroadcastEvent(ev)
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
