// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package services

import (
	"context"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/ridecharts/internal/charts"
	"github.com/tomtom215/ridecharts/internal/logging"
)

// Bootstrapper is satisfied by *pipeline.Pipeline.
type Bootstrapper interface {
	Start(ctx context.Context) error
	Load(ctx context.Context) (charts.ChartSet, error)
}

// PipelineService provisions the engine and registers the dataset, then
// optionally runs the first load. It stays up until the tree stops so the
// data layer reports as running.
//
// Start failures are permanent: the service returns suture.ErrDoNotRestart
// and the readiness probe keeps answering 503.
type PipelineService struct {
	pipeline    Bootstrapper
	loadOnStart bool
	name        string
}

// NewPipelineService wraps p.
func NewPipelineService(p Bootstrapper, loadOnStart bool) *PipelineService {
	return &PipelineService{pipeline: p, loadOnStart: loadOnStart, name: "pipeline"}
}

// Serve implements suture.Service.
func (s *PipelineService) Serve(ctx context.Context) error {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	if err := s.pipeline.Start(ctx); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Pipeline bootstrap failed; not restarting")
		return suture.ErrDoNotRestart
	}

	if s.loadOnStart {
		// A failed first load leaves the store cleared; a later trigger
		// can retry it.
		if set, err := s.pipeline.Load(ctx); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Initial chart load failed")
		} else {
			logging.Ctx(ctx).Info().Int("rows", set.Rows).Msg("Initial chart load complete")
		}
	}

	<-ctx.Done()
	return ctx.Err()
}

func (s *PipelineService) String() string {
	return s.name
}
