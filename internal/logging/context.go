// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ctxField is a context key whose value doubles as the log field name.
type ctxField string

const (
	correlationIDField ctxField = "correlation_id"
	requestIDField     ctxField = "request_id"
)

// contextFields lists, in output order, the keys Ctx copies into log lines.
var contextFields = []ctxField{correlationIDField, requestIDField}

func (f ctxField) from(ctx context.Context) string {
	s, _ := ctx.Value(f).(string)
	return s
}

// GenerateCorrelationID returns a short id: the first 8 characters of a
// UUID. Pipeline runs use it as their run id so log lines and pushed events
// line up.
func GenerateCorrelationID() string {
	return uuid.NewString()[:8]
}

// GenerateRequestID returns a full UUID.
func GenerateRequestID() string {
	return uuid.NewString()
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDField, id)
}

// ContextWithNewCorrelationID attaches a freshly generated correlation id.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation id, or "" when unset.
func CorrelationIDFromContext(ctx context.Context) string {
	return correlationIDField.from(ctx)
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDField, id)
}

// RequestIDFromContext returns the HTTP request id, or "" when unset.
func RequestIDFromContext(ctx context.Context) string {
	return requestIDField.from(ctx)
}

// Ctx returns the global logger carrying whichever ids ctx holds.
//
//	logging.Ctx(ctx).Info().Int("rows", n).Msg("Query complete")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := CtxWith(ctx).Logger()
	return &l
}

// CtxWith is Ctx for callers that add fields before building the logger.
func CtxWith(ctx context.Context) zerolog.Context {
	lc := With()
	for _, f := range contextFields {
		if v := f.from(ctx); v != "" {
			lc = lc.Str(string(f), v)
		}
	}
	return lc
}
