// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/tomtom215/ridecharts/internal/logging"
	"github.com/tomtom215/ridecharts/internal/metrics"
)

// Row maps column name to a normalized scalar: int64, float64, string,
// bool, time.Time or nil.
type Row map[string]any

// Int returns the column as an integer. Whole-valued floats count; nil,
// strings and fractional values do not.
func (r Row) Int(col string) (int64, bool) {
	switch v := r[col].(type) {
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	}
	return 0, false
}

// Float returns the column as a float. Integers are widened; nil is absent.
func (r Row) Float(col string) (float64, bool) {
	switch v := r[col].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Result is a fully materialized query result. It is not modified after
// Execute returns and may be read from several goroutines.
type Result struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (r *Result) Len() int {
	return len(r.Rows)
}

// Execute runs sqlText and returns every row in engine order. SQL the engine
// rejects (syntax, unknown table or column, type conversion) comes back as a
// *QueryError; no rows are returned with any error.
func (e *Engine) Execute(ctx context.Context, sqlText string) (*Result, error) {
	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	val, err := e.breaker.execute(func() (any, error) {
		return e.submit(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
			return queryAll(ctx, db, sqlText)
		})
	})
	elapsed := time.Since(start)

	if err != nil {
		err = e.wrapQueryError(ctx, sqlText, err)
		kind := "engine"
		var qe *QueryError
		if errors.As(err, &qe) {
			kind = string(qe.Kind)
		}
		metrics.RecordEngineOp("query", elapsed, kind)
		logging.Ctx(ctx).Debug().Err(err).Str("kind", kind).Msg("Query failed")
		return nil, err
	}

	res, _ := val.(*Result)
	metrics.RecordEngineOp("query", elapsed, "")
	metrics.EngineRowsReturned.Observe(float64(res.Len()))
	logging.Ctx(ctx).Debug().Int("rows", res.Len()).Dur("duration", elapsed).Msg("Query complete")
	return res, nil
}

// wrapQueryError turns driver errors into *QueryError and leaves engine
// lifecycle errors (closed, breaker open, caller cancellation) as they are.
func (e *Engine) wrapQueryError(ctx context.Context, sqlText string, err error) error {
	if e.queryTimeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrEngineClosed) {
		// The driver may surface the deadline as its own interrupt error.
		if !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return &QueryError{Kind: QueryKindTimeout, SQL: sqlText,
			Err: fmt.Errorf("query exceeded %v: %w", e.queryTimeout, err)}
	}
	switch {
	case errors.Is(err, ErrEngineClosed), errors.Is(err, ErrEngineUnavailable),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case isEngineFailure(err):
		return err
	}
	return &QueryError{Kind: classifyQueryError(err), SQL: sqlText, Err: err}
}

// queryAll runs in the worker goroutine and drains the cursor before
// returning, so nothing outlives the call.
func queryAll(ctx context.Context, db *sql.DB, sqlText string) (*Result, error) {
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(rows)

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: cols, Rows: make([]Row, 0, 64)}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalize(raw[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// normalize collapses the driver's scalar types to the small set Row
// documents.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		return x
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case int:
		return int64(x)
	case uint64:
		return int64(x)
	case uint32:
		return int64(x)
	case uint16:
		return int64(x)
	case uint8:
		return int64(x)
	case float64:
		return x
	case float32:
		return float64(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case duckdb.Decimal:
		return x.Float64()
	case []byte:
		return string(x)
	case string, bool, time.Time:
		return x
	default:
		return fmt.Sprint(x)
	}
}
