// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

// Package services adapts server components to suture.Service:
// Serve(ctx) blocks until ctx ends and returns ctx.Err(), or returns early
// with an error to ask for a restart. Each wrapper implements fmt.Stringer
// so suture can name it in log lines.
package services
