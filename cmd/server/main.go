// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

// Package main is the RideCharts server.
//
// Startup order:
//
//  1. Configuration: defaults, config.yaml, environment (koanf v2)
//  2. Logging: zerolog, with a slog bridge for the supervisor
//  3. Event bus: in-process watermill GoChannel carrying chart events
//  4. Pipeline: DuckDB engine and dataset registration, run by the supervisor
//  5. WebSocket hub and the bus-to-hub bridge
//  6. HTTP server: chi router under /api/v1
//
// # Configuration
//
// The dataset is the only required setting:
//
//	export DATASET_SOURCE=/data/yellow_tripdata_2023-01.parquet
//	export DATASET_TABLE=taxi_2023
//	export CHART_LOCALE=pt-BR
//	./ridecharts
//
// The server answers /api/v1/health/live at once; /api/v1/health/ready turns
// 200 when the dataset is registered. With PIPELINE_LOAD_ON_START (default
// true) the charts are built right after that.
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the supervisor tree: the HTTP server drains for
// up to 10s, WebSocket clients are closed, and the engine is released last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/ridecharts/internal/api"
	"github.com/tomtom215/ridecharts/internal/config"
	"github.com/tomtom215/ridecharts/internal/events"
	"github.com/tomtom215/ridecharts/internal/logging"
	"github.com/tomtom215/ridecharts/internal/pipeline"
	"github.com/tomtom215/ridecharts/internal/supervisor"
	"github.com/tomtom215/ridecharts/internal/supervisor/services"
	ws "github.com/tomtom215/ridecharts/internal/websocket"
)

// eventBufferSize is the GoChannel output buffer per subscriber.
const eventBufferSize = 64

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.LoggingSettings())

	logging.Info().
		Str("source", cfg.Dataset.Source).
		Str("table", cfg.Dataset.Table).
		Str("engine_bundle", cfg.Engine.Bundle).
		Str("locale", cfg.Charts.Locale).
		Msg("Starting RideCharts")

	bus := events.NewBus(eventBufferSize)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to resolve pipeline query")
	}
	opts.Publisher = bus
	p := pipeline.New(opts)
	defer func() {
		if err := p.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing engine")
		}
	}()

	wsHub := ws.NewHub()
	bridge := ws.NewEventBridge(wsHub)

	handler := api.NewHandler(p, wsHub, cfg.Server.CORSOrigins)
	mw := api.NewMiddleware(api.MiddlewareConfigFrom(&cfg.Server))
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, mw),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewComponentSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddDataService(services.NewPipelineService(p, cfg.Pipeline.LoadOnStart))
	tree.AddMessagingService(services.NewWebSocketHubService(wsHub))
	tree.AddMessagingService(services.NewEventBridgeService(bus.Subscriber(), bus.Logger(), bridge.Handle, nil))
	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, 10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
		treeErr = <-errCh
	case treeErr = <-errCh:
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("RideCharts stopped")
}
