// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/ridecharts/internal/logging"
)

// Metadata keys set on every published message.
const (
	MetadataEventType     = "event_type"
	MetadataCorrelationID = "correlation_id"
)

// Bus is the in-process pub/sub. Messages published while nobody is
// subscribed are dropped; subscribers that need the current state read it
// from the pipeline directly.
//
// Publish returns only after every subscriber has acked the message, so a
// subscriber sees events in publish order. Handlers on the bus must not
// block.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewBus creates a bus. bufferSize is the per-subscriber output buffer.
func NewBus(bufferSize int64) *Bus {
	logger := watermill.NewSlogLogger(logging.NewComponentSlogLogger("events"))
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            bufferSize,
			BlockPublishUntilSubscriberAck: true,
		}, logger),
		logger: logger,
	}
}

// Publish encodes ev and publishes it on TopicCharts.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(ev.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataEventType, ev.Type)
	if ev.CorrelationID != "" {
		msg.Metadata.Set(MetadataCorrelationID, ev.CorrelationID)
	}

	if err := b.pubsub.Publish(TopicCharts, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Subscriber exposes the subscribe side for a Router.
func (b *Bus) Subscriber() message.Subscriber {
	return b.pubsub
}

// Logger returns the watermill logger the bus was built with.
func (b *Bus) Logger() watermill.LoggerAdapter {
	return b.logger
}

// Close stops delivery to all subscribers.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
