// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package websocket

import (
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/ridecharts/internal/events"
	"github.com/tomtom215/ridecharts/internal/logging"
)

// Broadcaster is the part of Hub the bridge needs.
type Broadcaster interface {
	BroadcastRaw(data []byte)
}

// EventBridge forwards chart events from the event bus to WebSocket clients.
type EventBridge struct {
	hub Broadcaster
}

// NewEventBridge creates a bridge broadcasting to hub.
func NewEventBridge(hub Broadcaster) *EventBridge {
	return &EventBridge{hub: hub}
}

// Handle is a watermill consumer handler. Broadcasting never fails, so
// every message is acked.
func (b *EventBridge) Handle(msg *message.Message) error {
	logging.Ctx(msg.Context()).Debug().
		Str("event_type", msg.Metadata.Get(events.MetadataEventType)).
		Msg("Forwarding chart event to WebSocket clients")
	b.hub.BroadcastRaw(msg.Payload)
	return nil
}
