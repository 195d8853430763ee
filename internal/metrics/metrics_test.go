// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordEngineOp(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		kind      string
		wantErrs  float64
	}{
		{name: "successful query", operation: "query", kind: "", wantErrs: 0},
		{name: "syntax error", operation: "query", kind: "syntax", wantErrs: 1},
		{name: "load failure", operation: "load", kind: "source", wantErrs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var before float64
			if tt.kind != "" {
				before = testutil.ToFloat64(EngineQueryErrors.WithLabelValues(tt.operation, tt.kind))
			}

			RecordEngineOp(tt.operation, 5*time.Millisecond, tt.kind)

			if tt.kind == "" {
				return
			}
			after := testutil.ToFloat64(EngineQueryErrors.WithLabelValues(tt.operation, tt.kind))
			if after-before != tt.wantErrs {
				t.Errorf("error counter delta = %v, want %v", after-before, tt.wantErrs)
			}
		})
	}
}

func TestRecordPipelineRun(t *testing.T) {
	before := testutil.ToFloat64(PipelineRuns.WithLabelValues("success"))
	RecordPipelineRun("success", 20*time.Millisecond)
	if got := testutil.ToFloat64(PipelineRuns.WithLabelValues("success")) - before; got != 1 {
		t.Errorf("success runs delta = %v, want 1", got)
	}
}

func TestRecordRowsSkipped(t *testing.T) {
	before := testutil.ToFloat64(RowsSkipped.WithLabelValues("tip-by-hour"))

	RecordRowsSkipped("tip-by-hour", 3)
	RecordRowsSkipped("tip-by-hour", 0)
	RecordRowsSkipped("tip-by-hour", -1)

	if got := testutil.ToFloat64(RowsSkipped.WithLabelValues("tip-by-hour")) - before; got != 3 {
		t.Errorf("skipped delta = %v, want 3", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/charts/load", "200"))
	RecordAPIRequest("POST", "/api/v1/charts/load", 200, time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/charts/load", "200")) - before; got != 1 {
		t.Errorf("request counter delta = %v, want 1", got)
	}
}
