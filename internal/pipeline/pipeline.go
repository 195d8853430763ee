// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

// Package pipeline owns the engine handle and the chart store, and runs the
// provision → load → query → transform sequence behind the "load" and
// "clear" triggers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/ridecharts/internal/charts"
	"github.com/tomtom215/ridecharts/internal/config"
	"github.com/tomtom215/ridecharts/internal/engine"
	"github.com/tomtom215/ridecharts/internal/events"
	"github.com/tomtom215/ridecharts/internal/logging"
	"github.com/tomtom215/ridecharts/internal/metrics"
)

// ErrNotReady is returned by Load when Start has not completed successfully.
var ErrNotReady = errors.New("pipeline not ready")

// Engine is the part of *engine.Engine the pipeline uses.
type Engine interface {
	LoadDataset(ctx context.Context, source, table string) (engine.Registration, error)
	Execute(ctx context.Context, sql string) (*engine.Result, error)
	Ping(ctx context.Context) error
	Bundle() engine.Bundle
	BreakerState() string
	Close() error
}

// Publisher receives every chart state change.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// OpenFunc provisions an engine.
type OpenFunc func(ctx context.Context) (Engine, error)

// Options configures a Pipeline.
type Options struct {
	Source string
	Table  string

	// Query is the final SQL text, table name already substituted.
	Query string

	// Locale labels the charts each run produces.
	Locale string

	Open      OpenFunc
	Publisher Publisher // optional
}

// OptionsFromConfig builds Options that provision a DuckDB engine from
// cfg.Engine.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	query, err := ResolveQuery(cfg.Pipeline, cfg.Dataset.Table)
	if err != nil {
		return Options{}, err
	}
	engCfg := cfg.Engine
	return Options{
		Source: cfg.Dataset.Source,
		Table:  cfg.Dataset.Table,
		Query:  query,
		Locale: cfg.Charts.Locale,
		Open: func(ctx context.Context) (Engine, error) {
			return engine.Provision(ctx, &engCfg)
		},
	}, nil
}

// Pipeline is safe for concurrent use. Load and Clear are serialized.
type Pipeline struct {
	opts Options

	startOnce sync.Once
	startErr  error
	started   chan struct{}

	eng Engine
	reg engine.Registration

	runMu sync.Mutex

	mu    sync.RWMutex
	state State
}

// New creates a pipeline. Nothing is provisioned until Start.
func New(opts Options) *Pipeline {
	if opts.Locale == "" {
		opts.Locale = charts.DefaultLocale
	}
	return &Pipeline{
		opts:    opts,
		started: make(chan struct{}),
		state:   State{Status: StatusEmpty},
	}
}

// Start provisions the engine and registers the dataset. Only the first
// call does any work; every call returns that first outcome. A failure is
// permanent for the life of the Pipeline.
func (p *Pipeline) Start(ctx context.Context) error {
	p.startOnce.Do(func() {
		defer close(p.started)
		p.startErr = p.start(ctx)
		if p.startErr != nil {
			logging.Ctx(ctx).Error().Err(p.startErr).Str("source", p.opts.Source).Msg("Pipeline start failed")
			p.setState(State{Status: StatusFailed, Error: p.startErr.Error()})
		}
	})
	return p.startErr
}

func (p *Pipeline) start(ctx context.Context) error {
	if p.opts.Open == nil {
		return fmt.Errorf("pipeline has no engine opener")
	}
	eng, err := p.opts.Open(ctx)
	if err != nil {
		return err
	}

	reg, err := eng.LoadDataset(ctx, p.opts.Source, p.opts.Table)
	if err != nil {
		if cerr := eng.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Failed to close engine after load failure")
		}
		return err
	}

	p.mu.Lock()
	p.eng = eng
	p.reg = reg
	p.mu.Unlock()

	logging.Ctx(ctx).Info().
		Str("table", reg.Table).
		Int64("rows", reg.Rows).
		Str("bundle", eng.Bundle().Name).
		Msg("Pipeline ready")
	return nil
}

// Started closes once Start has finished, whatever the outcome.
func (p *Pipeline) Started() <-chan struct{} {
	return p.started
}

// Ready reports whether Start succeeded.
func (p *Pipeline) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.eng != nil
}

// Err returns the Start failure, if any.
func (p *Pipeline) Err() error {
	select {
	case <-p.started:
		return p.startErr
	default:
		return nil
	}
}

// Registration returns the dataset registration once Ready.
func (p *Pipeline) Registration() (engine.Registration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reg, p.eng != nil
}

// Engine returns the engine handle, or nil before Start succeeds.
func (p *Pipeline) Engine() Engine {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.eng
}

// Locale is the locale charts are built in.
func (p *Pipeline) Locale() string {
	return p.opts.Locale
}

// State returns a snapshot of the chart store.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// setState stores s under the next version and returns what was stored.
func (p *Pipeline) setState(s State) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.Version = p.state.Version + 1
	p.state = s
	return s
}

// Load clears the chart store, runs the query and rebuilds all charts. On
// any error the store is left cleared and the error is returned; a failed
// query is a *engine.QueryError.
func (p *Pipeline) Load(ctx context.Context) (charts.ChartSet, error) {
	eng := p.Engine()
	if eng == nil {
		if err := p.Err(); err != nil {
			return charts.ChartSet{}, fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		return charts.ChartSet{}, ErrNotReady
	}

	p.runMu.Lock()
	defer p.runMu.Unlock()

	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithNewCorrelationID(ctx)
	}
	runID := uuid.New().String()
	start := time.Now()

	p.setState(State{Status: StatusLoading, RunID: runID})
	logging.Ctx(ctx).Debug().Str("run_id", runID).Msg("Chart load started")

	res, err := eng.Execute(ctx, p.opts.Query)
	if err != nil {
		p.fail(ctx, runID, start, err)
		return charts.ChartSet{}, err
	}

	set := charts.BuildAll(res.Rows, p.opts.Locale)
	skipped := 0
	for _, c := range set.Charts {
		metrics.RecordRowsSkipped(c.Config.ID, c.Series.Skipped)
		skipped += c.Series.Skipped
	}

	now := time.Now().UTC()
	st := State{Status: StatusReady, Charts: &set, RunID: runID, GeneratedAt: &now}
	st = p.setState(st)
	metrics.RecordPipelineRun("success", time.Since(start))
	p.publish(ctx, events.TypeChartsLoaded, runID, st)

	logging.Ctx(ctx).Info().
		Str("run_id", runID).
		Int("rows", res.Len()).
		Int("rows_skipped", skipped).
		Dur("duration", time.Since(start)).
		Msg("Charts loaded")
	return set, nil
}

func (p *Pipeline) fail(ctx context.Context, runID string, start time.Time, err error) {
	st := State{Status: StatusFailed, RunID: runID, Error: err.Error()}
	var qe *engine.QueryError
	if errors.As(err, &qe) {
		st.ErrorKind = string(qe.Kind)
	}
	st = p.setState(st)
	metrics.RecordPipelineRun("failure", time.Since(start))
	p.publish(ctx, events.TypeChartsFailed, runID, st)

	logging.Ctx(ctx).Warn().
		Err(err).
		Str("run_id", runID).
		Str("error_kind", st.ErrorKind).
		Msg("Chart load failed")
}

// Clear empties the chart store. The engine and dataset are untouched.
func (p *Pipeline) Clear(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithNewCorrelationID(ctx)
	}
	st := State{Status: StatusEmpty}
	st = p.setState(st)
	p.publish(ctx, events.TypeChartsCleared, "", st)
	logging.Ctx(ctx).Info().Msg("Charts cleared")
}

// publish is best effort; a failed publish never fails the run.
func (p *Pipeline) publish(ctx context.Context, eventType, runID string, st State) {
	if p.opts.Publisher == nil {
		return
	}
	ev, err := events.NewEvent(eventType, runID, logging.CorrelationIDFromContext(ctx), st)
	if err == nil {
		ev.Seq = st.Version
		err = p.opts.Publisher.Publish(ctx, ev)
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event_type", eventType).Msg("Failed to publish chart event")
	}
}

// Close releases the engine. The Pipeline cannot be used afterwards.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	eng := p.eng
	p.eng = nil
	p.mu.Unlock()

	if eng == nil {
		return nil
	}
	return eng.Close()
}
