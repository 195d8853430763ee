// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/tomtom215/ridecharts/internal/config"
)

// TablePlaceholder in query text is replaced with the dataset table name.
const TablePlaceholder = "{{table}}"

// DefaultQuery selects the raw columns the charts need plus the pickup day
// of week (0 = Sunday) and hour (0-23) derived from the pickup timestamp.
const DefaultQuery = `SELECT
    lpep_pickup_datetime,
    trip_distance,
    tip_amount,
    CAST(strftime(lpep_pickup_datetime, '%w') AS INTEGER) AS pickup_day_of_week,
    CAST(strftime(lpep_pickup_datetime, '%H') AS INTEGER) AS pickup_hour
FROM {{table}}`

// ResolveQuery picks the query text (QueryFile, then Query, then
// DefaultQuery) and substitutes the table name.
func ResolveQuery(pc config.PipelineConfig, table string) (string, error) {
	text := pc.Query
	if pc.QueryFile != "" {
		b, err := os.ReadFile(pc.QueryFile)
		if err != nil {
			return "", fmt.Errorf("read query file: %w", err)
		}
		text = string(b)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = DefaultQuery
	}
	return strings.ReplaceAll(text, TablePlaceholder, table), nil
}

// DefaultQueryFor returns DefaultQuery with table substituted.
func DefaultQueryFor(table string) string {
	return strings.ReplaceAll(DefaultQuery, TablePlaceholder, table)
}
