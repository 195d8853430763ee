// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package services

import "context"

// HubRunner is satisfied by *websocket.Hub.
type HubRunner interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService supervises the push hub. When ctx ends the hub closes
// every client connection before Serve returns.
type WebSocketHubService struct {
	hub HubRunner
}

func NewWebSocketHubService(hub HubRunner) *WebSocketHubService {
	return &WebSocketHubService{hub: hub}
}

func (s *WebSocketHubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

func (s *WebSocketHubService) String() string { return "websocket-hub" }
