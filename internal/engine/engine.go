// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

// Package engine runs the embedded DuckDB instance that RideCharts queries.
//
// One worker goroutine owns the database connection for the whole life of
// an Engine. Every operation (dataset registration, queries) is sent to that
// goroutine as a request and the caller blocks on the reply, so concurrent
// callers are serialized without sharing the connection.
//
//	eng, err := engine.Provision(ctx, &cfg.Engine)
//	if err != nil { ... }          // *engine.ProvisionError
//	defer eng.Close()
//
//	reg, err := eng.LoadDataset(ctx, "trips.parquet", "taxi_2023")  // *engine.LoadError
//	res, err := eng.Execute(ctx, "SELECT ...")                        // *engine.QueryError
//
// The handle is passed explicitly; there is no package-level engine.
package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/tomtom215/ridecharts/internal/config"
	"github.com/tomtom215/ridecharts/internal/logging"
	"github.com/tomtom215/ridecharts/internal/metrics"
)

const defaultProvisionTimeout = 30 * time.Second

// openConnector creates the DuckDB connector. Tests replace it to simulate
// a slow instantiation.
var openConnector = duckdb.NewConnector

// opFunc runs inside the worker goroutine with exclusive use of db.
type opFunc func(ctx context.Context, db *sql.DB) (any, error)

type request struct {
	ctx  context.Context
	op   opFunc
	resp chan response
}

type response struct {
	val any
	err error
}

// Engine is the handle to a running DuckDB instance and its worker.
type Engine struct {
	bundle       Bundle
	path         string
	maxMemory    string
	queryTimeout time.Duration

	reqs chan request
	quit chan struct{}
	done chan struct{}

	closeOnce sync.Once

	breaker *engineBreaker

	mu     sync.RWMutex
	tables map[string]Registration

	// extensions loaded so far; only touched from the worker goroutine.
	loadedExt map[string]bool
}

// Provision selects a bundle for this host, starts the worker and blocks
// until DuckDB is open and answering, the provision timeout passes, or ctx
// ends. Any failure is a *ProvisionError.
func Provision(ctx context.Context, cfg *config.EngineConfig) (*Engine, error) {
	return provision(ctx, cfg, ProbeHost())
}

func provision(ctx context.Context, cfg *config.EngineConfig, caps Capabilities) (*Engine, error) {
	bundle, err := SelectBundle(cfg.Bundle, caps)
	if err != nil {
		return nil, &ProvisionError{Bundle: cfg.Bundle, Err: err}
	}
	if cfg.Threads > 0 {
		bundle.Threads = cfg.Threads
	}

	timeout := cfg.ProvisionTimeout
	if timeout <= 0 {
		timeout = defaultProvisionTimeout
	}

	e := &Engine{
		bundle:       bundle,
		path:         cfg.Path,
		maxMemory:    cfg.MaxMemory,
		queryTimeout: cfg.QueryTimeout,
		reqs:         make(chan request),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		breaker:      newEngineBreaker("engine", cfg.BreakerFailures, cfg.BreakerTimeout),
		tables:       make(map[string]Registration),
		loadedExt:    make(map[string]bool),
	}

	ready := make(chan error, 1)
	go e.run(timeout, ready)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-ready:
		if err != nil {
			return nil, &ProvisionError{Bundle: bundle.Name, Err: err}
		}
	case <-timer.C:
		e.shutdown()
		return nil, &ProvisionError{Bundle: bundle.Name, Err: ErrProvisionTimeout}
	case <-ctx.Done():
		e.shutdown()
		return nil, &ProvisionError{Bundle: bundle.Name, Err: ctx.Err()}
	}

	metrics.EngineProvisioned.WithLabelValues(bundle.Name).Set(1)
	logging.Info().
		Str("bundle", bundle.Name).
		Int("threads", bundle.Threads).
		Str("path", e.path).
		Msg("Engine provisioned")
	return e, nil
}

// dsn disables extension auto-install so a missing network never stalls a
// query; extensions are loaded explicitly by ensureExtension.
func (e *Engine) dsn() string {
	return e.path + "?autoinstall_known_extensions=false&autoload_known_extensions=false"
}

// initConn runs on every new driver connection.
func (e *Engine) initConn(execer driver.ExecerContext) error {
	stmts := []string{fmt.Sprintf("SET threads = %d", e.bundle.Threads)}
	if e.maxMemory != "" {
		stmts = append(stmts, fmt.Sprintf("SET memory_limit = '%s'", escapeLiteral(e.maxMemory)))
	}
	for _, stmt := range stmts {
		if _, err := execer.ExecContext(context.Background(), stmt, nil); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// run is the worker goroutine. It reports the outcome of opening the
// database on ready and then serves requests until quit is closed.
func (e *Engine) run(pingTimeout time.Duration, ready chan<- error) {
	defer close(e.done)

	connector, err := openConnector(e.dsn(), e.initConn)
	if err != nil {
		ready <- fmt.Errorf("create connector: %w", err)
		return
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		closeQuietly(db)
		closeQuietly(connector)
		ready <- fmt.Errorf("ping: %w", err)
		return
	}
	ready <- nil

	for {
		select {
		case <-e.quit:
			closeWithLog(db, "duckdb database")
			closeWithLog(connector, "duckdb connector")
			return
		case req := <-e.reqs:
			val, err := req.op(req.ctx, db)
			req.resp <- response{val: val, err: err}
		}
	}
}

// submit hands op to the worker and waits for its reply.
func (e *Engine) submit(ctx context.Context, op opFunc) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := request{ctx: ctx, op: op, resp: make(chan response, 1)}

	select {
	case <-e.quit:
		return nil, ErrEngineClosed
	case <-e.done:
		return nil, ErrEngineClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case e.reqs <- req:
	}

	select {
	case r := <-req.resp:
		return r.val, r.err
	case <-ctx.Done():
		// The worker still finishes op; resp is buffered so it never blocks.
		return nil, ctx.Err()
	case <-e.done:
		// The worker replies before exiting, so a reply may be waiting.
		select {
		case r := <-req.resp:
			return r.val, r.err
		default:
			return nil, ErrEngineClosed
		}
	}
}

// Bundle returns the runtime bundle this engine was provisioned with.
func (e *Engine) Bundle() Bundle {
	return e.bundle
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	select {
	case <-e.quit:
		return true
	default:
		return false
	}
}

// BreakerState returns "closed", "half-open" or "open".
func (e *Engine) BreakerState() string {
	return e.breaker.state().String()
}

// Ping round-trips through the worker.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.submit(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		return nil, db.PingContext(ctx)
	})
	return err
}

// Close stops the worker and releases DuckDB. Only the first call does any
// work; later calls return nil immediately.
func (e *Engine) Close() error {
	first := false
	e.closeOnce.Do(func() {
		first = true
		close(e.quit)
	})
	if !first {
		return nil
	}
	<-e.done

	e.mu.Lock()
	for name := range e.tables {
		metrics.DatasetRows.DeleteLabelValues(name)
	}
	e.tables = make(map[string]Registration)
	e.mu.Unlock()

	metrics.EngineProvisioned.WithLabelValues(e.bundle.Name).Set(0)
	logging.Info().Str("bundle", e.bundle.Name).Msg("Engine closed")
	return nil
}

// shutdown stops a worker that never became ready for the caller.
func (e *Engine) shutdown() {
	e.closeOnce.Do(func() { close(e.quit) })
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
