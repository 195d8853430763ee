// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

// Package events carries chart state changes from the pipeline to anything
// that wants to react to them (today: the WebSocket bridge). It is an
// in-process watermill GoChannel wrapped with a small router.
package events

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// TopicCharts is the single topic chart state events are published on.
const TopicCharts = "charts"

// Event types.
const (
	TypeChartsLoaded  = "charts.loaded"
	TypeChartsCleared = "charts.cleared"
	TypeChartsFailed  = "charts.failed"
)

// Event is the envelope published for every chart state change.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	// Seq orders events from one publisher; 0 means unordered.
	Seq           uint64    `json:"seq,omitempty"`
	RunID         string    `json:"run_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`

	// Data is the pipeline state snapshot after the change.
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event with a fresh ID, marshaling data into Data.
func NewEvent(eventType, runID, correlationID string, data any) (Event, error) {
	ev := Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		RunID:         runID,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s data: %w", eventType, err)
		}
		ev.Data = raw
	}
	return ev, nil
}

// Validate checks the fields every consumer relies on.
func (e *Event) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("event id is required")
	case e.Type == "":
		return fmt.Errorf("event type is required")
	case e.Timestamp.IsZero():
		return fmt.Errorf("event timestamp is required")
	}
	return nil
}

// Decode parses an event payload.
func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}
