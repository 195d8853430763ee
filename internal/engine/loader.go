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
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/ridecharts/internal/logging"
	"github.com/tomtom215/ridecharts/internal/metrics"
	"github.com/tomtom215/ridecharts/internal/validation"
)

// extensionTimeout bounds INSTALL/LOAD of an extension. The CGO call does
// not observe ctx, so the limit is enforced with a select.
const extensionTimeout = 60 * time.Second

// Format is a dataset file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatJSON    Format = "json"
)

// readerFunc returns the DuckDB table function that scans f.
func (f Format) readerFunc() string {
	switch f {
	case FormatParquet:
		return "read_parquet"
	case FormatJSON:
		return "read_json_auto"
	default:
		return "read_csv_auto"
	}
}

// Registration records a dataset registered as a table.
type Registration struct {
	Table    string    `json:"table"`
	Source   string    `json:"source"`
	Format   Format    `json:"format"`
	Rows     int64     `json:"rows"`
	LoadedAt time.Time `json:"loaded_at"`
}

// source is a resolved dataset location.
type source struct {
	location string // what DuckDB reads
	remote   bool
	format   Format
}

// LoadDataset makes the file at sourceURI queryable as tableName. Column
// types are inferred by the engine.
//
// Each name is registered once per engine. Loading the same source under
// the same name again returns the existing registration; a different source
// under a taken name is a *LoadError wrapping ErrTableExists.
func (e *Engine) LoadDataset(ctx context.Context, sourceURI, tableName string) (Registration, error) {
	if !validation.IsSQLIdentifier(tableName) {
		return Registration{}, &LoadError{Table: tableName, Source: sourceURI, Err: ErrInvalidTableName}
	}
	if e.Closed() {
		return Registration{}, &LoadError{Table: tableName, Source: sourceURI, Err: ErrEngineClosed}
	}

	if reg, ok := e.Registration(tableName); ok {
		return e.reuseRegistration(ctx, reg, sourceURI)
	}

	src, err := resolveSource(sourceURI, e.bundle)
	if err != nil {
		metrics.RecordEngineOp("load", 0, "source")
		return Registration{}, &LoadError{Table: tableName, Source: sourceURI, Err: err}
	}

	// Check, CREATE and bookkeeping form one worker op: only one of several
	// concurrent loads of a name reaches CREATE TABLE.
	start := time.Now()
	val, err := e.breaker.execute(func() (any, error) {
		return e.submit(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
			if reg, ok := e.Registration(tableName); ok {
				return loadOutcome{reg: reg, existing: true}, nil
			}
			rows, err := e.createTable(ctx, db, src, tableName)
			if err != nil {
				return nil, err
			}
			reg := Registration{
				Table:    tableName,
				Source:   sourceURI,
				Format:   src.format,
				Rows:     rows,
				LoadedAt: time.Now().UTC(),
			}
			e.mu.Lock()
			e.tables[tableName] = reg
			e.mu.Unlock()
			return loadOutcome{reg: reg}, nil
		})
	})
	if err != nil {
		metrics.RecordEngineOp("load", time.Since(start), "engine")
		return Registration{}, &LoadError{Table: tableName, Source: sourceURI, Err: err}
	}
	out, _ := val.(loadOutcome)
	if out.existing {
		return e.reuseRegistration(ctx, out.reg, sourceURI)
	}
	metrics.RecordEngineOp("load", time.Since(start), "")

	reg, rows := out.reg, out.reg.Rows
	metrics.DatasetRows.WithLabelValues(tableName).Set(float64(rows))
	logging.Ctx(ctx).Info().
		Str("table", tableName).
		Str("source", sourceURI).
		Str("format", string(src.format)).
		Int64("rows", rows).
		Dur("duration", time.Since(start)).
		Msg("Dataset registered")
	return reg, nil
}

// loadOutcome is what the registering worker op hands back.
type loadOutcome struct {
	reg      Registration
	existing bool
}

// reuseRegistration resolves a load into a name that is already taken.
func (e *Engine) reuseRegistration(ctx context.Context, reg Registration, sourceURI string) (Registration, error) {
	if reg.Source == sourceURI {
		logging.Ctx(ctx).Debug().Str("table", reg.Table).Msg("Dataset already registered")
		return reg, nil
	}
	return Registration{}, &LoadError{
		Table:  reg.Table,
		Source: sourceURI,
		Err:    fmt.Errorf("%w (currently %s)", ErrTableExists, reg.Source),
	}
}

// Registration returns the registration for table, if any.
func (e *Engine) Registration(table string) (Registration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	reg, ok := e.tables[table]
	return reg, ok
}

// Registrations returns all registrations ordered by table name.
func (e *Engine) Registrations() []Registration {
	e.mu.RLock()
	out := make([]Registration, 0, len(e.tables))
	for _, reg := range e.tables {
		out = append(out, reg)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out
}

// createTable runs in the worker goroutine.
func (e *Engine) createTable(ctx context.Context, db *sql.DB, src source, table string) (int64, error) {
	if src.remote {
		if err := e.ensureExtension(ctx, db, "httpfs"); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
		}
	}

	// table is a validated identifier; the location is a quoted literal.
	stmt := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s('%s')",
		table, src.format.readerFunc(), escapeLiteral(src.location))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return 0, err
	}

	var rows int64
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&rows); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return rows, nil
}

type execResult struct {
	err error
}

// ensureExtension installs and loads a bundle extension once per engine.
// Runs in the worker goroutine.
func (e *Engine) ensureExtension(ctx context.Context, db *sql.DB, name string) error {
	if e.loadedExt[name] {
		return nil
	}
	if !e.bundle.hasExtension(name) {
		return fmt.Errorf("extension %s not available in %s bundle", name, e.bundle.Name)
	}

	for _, stmt := range []string{"INSTALL " + name, "LOAD " + name} {
		if err := execWithHardTimeout(ctx, db, stmt, extensionTimeout); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	e.loadedExt[name] = true
	logging.Debug().Str("extension", name).Msg("Extension loaded")
	return nil
}

// execWithHardTimeout runs stmt with a goroutine-based timeout for calls
// that may not observe ctx (extension downloads happen inside CGO).
func execWithHardTimeout(ctx context.Context, db *sql.DB, stmt string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan execResult, 1)
	go func() {
		_, err := db.ExecContext(ctx, stmt)
		resultCh <- execResult{err: err}
	}()

	select {
	case result := <-resultCh:
		return result.err
	case <-time.After(timeout):
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// resolveSource validates sourceURI against the bundle and picks a format.
func resolveSource(sourceURI string, bundle Bundle) (source, error) {
	if strings.TrimSpace(sourceURI) == "" {
		return source{}, fmt.Errorf("%w: empty source", ErrSourceUnreachable)
	}

	src := source{location: sourceURI}

	if u, err := url.Parse(sourceURI); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "s3":
			if !bundle.AllowsRemote() {
				return source{}, fmt.Errorf("%w: remote source needs the extended bundle (running %s)",
					ErrSourceUnreachable, bundle.Name)
			}
			src.remote = true
			f, ok := formatFromName(u.Path)
			if !ok {
				f = FormatCSV
			}
			src.format = f
			return src, nil
		case "file":
			src.location = u.Path
		default:
			return source{}, fmt.Errorf("%w: unsupported scheme %q", ErrSourceUnreachable, u.Scheme)
		}
	}

	info, err := os.Stat(src.location)
	if err != nil {
		return source{}, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}
	if info.IsDir() {
		return source{}, fmt.Errorf("%w: %s is a directory", ErrSourceUnreachable, src.location)
	}

	if f, ok := formatFromName(src.location); ok {
		src.format = f
		return src, nil
	}
	f, err := sniffFormat(src.location)
	if err != nil {
		return source{}, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}
	src.format = f
	return src, nil
}

func formatFromName(name string) (Format, bool) {
	lower := strings.ToLower(name)
	for _, suffix := range []string{".gz", ".zst"} {
		lower = strings.TrimSuffix(lower, suffix)
	}
	switch filepath.Ext(lower) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, true
	case ".parquet", ".pq":
		return FormatParquet, true
	case ".json", ".ndjson", ".jsonl":
		return FormatJSON, true
	}
	return "", false
}

// sniffFormat looks at the first bytes of a file with no telling extension.
func sniffFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer closeQuietly(f)

	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	head = head[:n]

	switch {
	case string(head) == "PAR1":
		return FormatParquet, nil
	case len(head) > 0 && (head[0] == '{' || head[0] == '['):
		return FormatJSON, nil
	default:
		return FormatCSV, nil
	}
}
