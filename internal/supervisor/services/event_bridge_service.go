// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package services

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/ridecharts/internal/events"
	"github.com/tomtom215/ridecharts/internal/logging"
)

// EventBridgeService routes chart events from the bus to a handler, usually
// websocket.EventBridge.Handle. Each Serve builds a fresh router so a
// restart after a crash starts clean.
type EventBridgeService struct {
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter
	handler    message.NoPublishHandlerFunc
	config     events.RouterConfig
	name       string
}

// NewEventBridgeService creates the service. cfg may be nil for defaults.
func NewEventBridgeService(sub message.Subscriber, logger watermill.LoggerAdapter, handler message.NoPublishHandlerFunc, cfg *events.RouterConfig) *EventBridgeService {
	rc := events.DefaultRouterConfig()
	if cfg != nil {
		rc = *cfg
	}
	return &EventBridgeService{
		subscriber: sub,
		logger:     logger,
		handler:    handler,
		config:     rc,
		name:       "event-bridge",
	}
}

// Serve implements suture.Service. It logs once the handler is subscribed;
// events published before that are not seen by the bridge.
func (s *EventBridgeService) Serve(ctx context.Context) error {
	router, err := events.NewRouter(&s.config, s.logger)
	if err != nil {
		return fmt.Errorf("create event router: %w", err)
	}
	router.AddConsumerHandler("ws-bridge", s.subscriber, s.handler)

	runErr := make(chan error, 1)
	go func() { runErr <- router.Run(ctx) }()

	select {
	case <-router.Running():
		logging.Info().Str("topic", events.TopicCharts).Msg("Event bridge subscribed")
		err = <-runErr
	case err = <-runErr:
	}

	if err != nil {
		return fmt.Errorf("event router: %w", err)
	}
	return ctx.Err()
}

func (s *EventBridgeService) String() string {
	return s.name
}
