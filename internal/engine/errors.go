// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package engine

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/tomtom215/ridecharts/internal/logging"
)

var (
	// ErrEngineClosed is returned by every operation after Close.
	ErrEngineClosed = errors.New("engine closed")

	// ErrEngineUnavailable is returned while the circuit breaker is open.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrNoCompatibleBundle means no runtime bundle fits the host.
	ErrNoCompatibleBundle = errors.New("no compatible runtime bundle")

	// ErrProvisionTimeout means the worker did not acknowledge in time.
	ErrProvisionTimeout = errors.New("engine provisioning timed out")

	// ErrTableExists means the name is already registered to another source.
	ErrTableExists = errors.New("table already registered")

	// ErrSourceUnreachable means the dataset file could not be reached.
	ErrSourceUnreachable = errors.New("dataset source unreachable")

	// ErrInvalidTableName means the name is not a bare SQL identifier.
	ErrInvalidTableName = errors.New("invalid table name")
)

// ProvisionError reports a failure to bring the engine up.
type ProvisionError struct {
	Bundle string
	Err    error
}

func (e *ProvisionError) Error() string {
	if e.Bundle == "" {
		return fmt.Sprintf("provision engine: %v", e.Err)
	}
	return fmt.Sprintf("provision engine (%s bundle): %v", e.Bundle, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// LoadError reports a failure to register a dataset.
type LoadError struct {
	Table  string
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s into %q: %v", e.Source, e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// QueryKind classifies a rejected query.
type QueryKind string

const (
	QueryKindSyntax     QueryKind = "syntax"
	QueryKindCatalog    QueryKind = "catalog"
	QueryKindBinder     QueryKind = "binder"
	QueryKindConversion QueryKind = "conversion"
	QueryKindTimeout    QueryKind = "timeout"
	QueryKindOther      QueryKind = "other"
)

// QueryError reports a query the engine rejected or could not finish.
// No rows are ever returned alongside it.
type QueryError struct {
	Kind QueryKind
	SQL  string
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// IsQueryError reports whether err is, or wraps, a *QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// classifyQueryError maps a driver error to a QueryKind. The driver returns
// *duckdb.Error for engine-side failures; anything else falls back to the
// message prefix DuckDB uses ("Parser Error: ...").
func classifyQueryError(err error) QueryKind {
	var dErr *duckdb.Error
	if errors.As(err, &dErr) {
		switch dErr.Type {
		case duckdb.ErrorTypeParser, duckdb.ErrorTypeSyntax:
			return QueryKindSyntax
		case duckdb.ErrorTypeCatalog:
			return QueryKindCatalog
		case duckdb.ErrorTypeBinder:
			return QueryKindBinder
		case duckdb.ErrorTypeConversion, duckdb.ErrorTypeInvalidInput, duckdb.ErrorTypeMismatchType:
			return QueryKindConversion
		case duckdb.ErrorTypeInterrupt:
			return QueryKindTimeout
		}
	}

	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "Parser Error"):
		return QueryKindSyntax
	case strings.HasPrefix(msg, "Catalog Error"):
		return QueryKindCatalog
	case strings.HasPrefix(msg, "Binder Error"):
		return QueryKindBinder
	case strings.HasPrefix(msg, "Conversion Error"), strings.HasPrefix(msg, "Invalid Input Error"):
		return QueryKindConversion
	}
	return QueryKindOther
}

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource on an error path where the close error is not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
