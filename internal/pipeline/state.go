// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package pipeline

import (
	"time"

	"github.com/tomtom215/ridecharts/internal/charts"
)

// Status is the chart store's lifecycle state.
type Status string

const (
	StatusEmpty   Status = "empty"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// State is a snapshot of the chart store. Charts is set only when Status is
// ready; a failed or cleared store never holds partial results. Version
// increases with every change and matches the Seq of the event announcing
// it.
type State struct {
	Version     uint64           `json:"version"`
	Status      Status           `json:"status"`
	Charts      *charts.ChartSet `json:"charts,omitempty"`
	RunID       string           `json:"run_id,omitempty"`
	Error       string           `json:"error,omitempty"`
	ErrorKind   string           `json:"error_kind,omitempty"`
	GeneratedAt *time.Time       `json:"generated_at,omitempty"`
}

// Localized returns a copy of s with chart labels in locale.
func (s State) Localized(locale string) State {
	if s.Charts == nil || locale == "" || locale == s.Charts.Locale {
		return s
	}
	relabeled := s.Charts.Relabel(locale)
	s.Charts = &relabeled
	return s
}
