// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

// Package metrics holds the Prometheus collectors for RideCharts and small
// Record* helpers so call sites stay one line.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine

	EngineProvisioned = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ridecharts_engine_provisioned",
			Help: "1 while an engine with the given bundle is running",
		},
		[]string{"bundle"},
	)

	EngineQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ridecharts_engine_query_duration_seconds",
			Help:    "Duration of engine operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "load"
	)

	EngineQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridecharts_engine_errors_total",
			Help: "Total number of engine operation errors by kind",
		},
		[]string{"operation", "kind"},
	)

	EngineRowsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridecharts_engine_rows_returned",
			Help:    "Rows materialized per query",
			Buckets: prometheus.ExponentialBuckets(1, 10, 8),
		},
	)

	// Dataset

	DatasetRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ridecharts_dataset_rows",
			Help: "Row count of each registered table",
		},
		[]string{"table"},
	)

	// Pipeline

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridecharts_pipeline_runs_total",
			Help: "Total chart load runs by outcome",
		},
		[]string{"outcome"}, // "success", "query_error", "error"
	)

	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridecharts_pipeline_run_duration_seconds",
			Help:    "End-to-end duration of a chart load run",
			Buckets: prometheus.DefBuckets,
		},
	)

	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridecharts_rows_skipped_total",
			Help: "Rows dropped as malformed by each chart transform",
		},
		[]string{"chart"},
	)

	// API

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridecharts_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ridecharts_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ridecharts_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ridecharts_websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridecharts_websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit breaker

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ridecharts_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridecharts_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridecharts_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordEngineOp records the duration of an engine operation and, on
// failure, an error counted under kind.
func RecordEngineOp(operation string, duration time.Duration, kind string) {
	EngineQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if kind != "" {
		EngineQueryErrors.WithLabelValues(operation, kind).Inc()
	}
}

// RecordPipelineRun records one chart load run.
func RecordPipelineRun(outcome string, duration time.Duration) {
	PipelineRuns.WithLabelValues(outcome).Inc()
	PipelineRunDuration.Observe(duration.Seconds())
}

// RecordRowsSkipped adds n skipped rows for chart. Zero is a no-op.
func RecordRowsSkipped(chart string, n int) {
	if n <= 0 {
		return
	}
	RowsSkipped.WithLabelValues(chart).Add(float64(n))
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
