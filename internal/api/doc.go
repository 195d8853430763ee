// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

/*
Package api exposes the chart pipeline over HTTP.

Routes:

	GET  /api/v1/health/live     liveness
	GET  /api/v1/health/ready    200 once the dataset is registered, else 503
	GET  /api/v1/charts          chart store state (?locale=en|pt-BR)
	GET  /api/v1/charts/{id}     one chart
	POST /api/v1/charts/load     run the query and rebuild every chart
	POST /api/v1/charts/clear    empty the chart store
	GET  /api/v1/dataset         registered dataset and engine bundle
	GET  /api/v1/ws              WebSocket push of chart events
	GET  /metrics                Prometheus

Every JSON response uses the APIResponse envelope. Load errors map to
503 (pipeline not ready, engine unavailable), 400 (the engine rejected the
query; details carry the error kind) or 500.
*/
package api
