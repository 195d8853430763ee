// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestLoadDataset_CSV(t *testing.T) {
	eng := setupTestEngine(t)
	path := writeFixture(t, "trips.csv", tripsCSV)

	reg, err := eng.LoadDataset(context.Background(), path, "trips")
	if err != nil {
		t.Fatalf("LoadDataset() error = %v", err)
	}
	if reg.Rows != 3 {
		t.Errorf("Rows = %d, want 3", reg.Rows)
	}
	if reg.Format != FormatCSV {
		t.Errorf("Format = %q, want csv", reg.Format)
	}
	if reg.Table != "trips" || reg.Source != path {
		t.Errorf("Registration = %+v", reg)
	}

	got, ok := eng.Registration("trips")
	if !ok || got.Rows != 3 {
		t.Errorf("Registration(trips) = %+v, %v", got, ok)
	}
	if regs := eng.Registrations(); len(regs) != 1 {
		t.Errorf("Registrations() len = %d, want 1", len(regs))
	}
}

func TestLoadDataset_FileURI(t *testing.T) {
	eng := setupTestEngine(t)
	path := writeFixture(t, "trips.csv", tripsCSV)

	reg, err := eng.LoadDataset(context.Background(), "file://"+path, "trips")
	if err != nil {
		t.Fatalf("LoadDataset() error = %v", err)
	}
	if reg.Rows != 3 {
		t.Errorf("Rows = %d, want 3", reg.Rows)
	}
}

func TestLoadDataset_SameSourceIsNoop(t *testing.T) {
	eng := setupTestEngine(t)
	path := writeFixture(t, "trips.csv", tripsCSV)
	ctx := context.Background()

	first, err := eng.LoadDataset(ctx, path, "trips")
	if err != nil {
		t.Fatalf("first LoadDataset() error = %v", err)
	}
	second, err := eng.LoadDataset(ctx, path, "trips")
	if err != nil {
		t.Fatalf("second LoadDataset() error = %v", err)
	}
	if !first.LoadedAt.Equal(second.LoadedAt) {
		t.Error("second load should return the original registration")
	}
}

func TestLoadDataset_ConcurrentSameTable(t *testing.T) {
	eng := setupTestEngine(t)
	path := writeFixture(t, "trips.csv", tripsCSV)
	other := writeFixture(t, "other.csv", tripsCSV)
	ctx := context.Background()

	const loaders = 8
	type result struct {
		reg Registration
		err error
	}
	results := make(chan result, 2*loaders)
	var wg sync.WaitGroup
	for i := 0; i < loaders; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg, err := eng.LoadDataset(ctx, path, "trips")
			results <- result{reg, err}
		}()
		go func() {
			defer wg.Done()
			_, err := eng.LoadDataset(ctx, other, "trips_other")
			results <- result{err: err}
		}()
	}
	wg.Wait()
	close(results)

	var loadedAt time.Time
	for r := range results {
		if r.err != nil {
			t.Errorf("LoadDataset() error = %v", r.err)
			continue
		}
		if r.reg.Table != "trips" {
			continue
		}
		if loadedAt.IsZero() {
			loadedAt = r.reg.LoadedAt
		} else if !r.reg.LoadedAt.Equal(loadedAt) {
			t.Error("every caller should get the same registration")
		}
	}

	// A different source racing into a taken name still gets ErrTableExists.
	_, err := eng.LoadDataset(ctx, other, "trips")
	if !errors.Is(err, ErrTableExists) {
		t.Errorf("error = %v, want ErrTableExists", err)
	}
	if got := len(eng.Registrations()); got != 2 {
		t.Errorf("Registrations() = %d entries, want 2", got)
	}
}

func TestLoadDataset_ConcurrentDifferentSources(t *testing.T) {
	eng := setupTestEngine(t)
	a := writeFixture(t, "a.csv", tripsCSV)
	b := writeFixture(t, "b.csv", tripsCSV)
	ctx := context.Background()

	errs := make(chan error, 2)
	for _, src := range []string{a, b} {
		go func(src string) {
			_, err := eng.LoadDataset(ctx, src, "trips")
			errs <- err
		}(src)
	}

	var ok, exists int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrTableExists):
			exists++
		default:
			t.Errorf("unexpected error = %v", err)
		}
	}
	if ok != 1 || exists != 1 {
		t.Errorf("successes = %d, ErrTableExists = %d; want 1 and 1", ok, exists)
	}
}

func TestLoadDataset_Errors(t *testing.T) {
	eng := setupTestEngine(t)
	ctx := context.Background()
	good := writeFixture(t, "trips.csv", tripsCSV)
	other := writeFixture(t, "other.csv", tripsCSV)
	badParquet := writeFixture(t, "broken.parquet", "this is not parquet at all")

	if _, err := eng.LoadDataset(ctx, good, "trips"); err != nil {
		t.Fatalf("setup LoadDataset() error = %v", err)
	}

	tests := []struct {
		name    string
		source  string
		table   string
		wantErr error
	}{
		{name: "name taken by another source", source: other, table: "trips", wantErr: ErrTableExists},
		{name: "missing local file", source: filepath.Join(t.TempDir(), "nope.csv"), table: "missing", wantErr: ErrSourceUnreachable},
		{name: "directory", source: t.TempDir(), table: "dir", wantErr: ErrSourceUnreachable},
		{name: "empty source", source: "", table: "empty", wantErr: ErrSourceUnreachable},
		{name: "remote on baseline bundle", source: "https://example.com/trips.parquet", table: "remote", wantErr: ErrSourceUnreachable},
		{name: "unsupported scheme", source: "ftp://example.com/trips.csv", table: "ftp", wantErr: ErrSourceUnreachable},
		{name: "invalid table name", source: good, table: "taxi-2023", wantErr: ErrInvalidTableName},
		{name: "empty table name", source: good, table: "", wantErr: ErrInvalidTableName},
		{name: "malformed parquet", source: badParquet, table: "broken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.LoadDataset(ctx, tt.source, tt.table)
			if err == nil {
				t.Fatal("LoadDataset() error = nil")
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("error type = %T, want *LoadError", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if _, ok := eng.Registration(tt.table); ok && tt.table != "trips" {
				t.Errorf("failed load left a registration for %q", tt.table)
			}
		})
	}
}

func TestFormatFromName(t *testing.T) {
	tests := []struct {
		name   string
		want   Format
		wantOK bool
	}{
		{"trips.csv", FormatCSV, true},
		{"trips.CSV", FormatCSV, true},
		{"trips.csv.gz", FormatCSV, true},
		{"trips.tsv", FormatCSV, true},
		{"green_tripdata_2023-01.parquet", FormatParquet, true},
		{"trips.ndjson", FormatJSON, true},
		{"/data/trips", "", false},
		{"trips.bin", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := formatFromName(tt.name)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("formatFromName(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSniffFormat(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Format
	}{
		{"parquet magic", "PAR1\x00\x00", FormatParquet},
		{"json object", `{"a":1}`, FormatJSON},
		{"json array", `[{"a":1}]`, FormatJSON},
		{"csv", "a,b\n1,2\n", FormatCSV},
		{"short file", "a", FormatCSV},
		{"empty file", "", FormatCSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFixture(t, "data", tt.content)
			got, err := sniffFormat(path)
			if err != nil {
				t.Fatalf("sniffFormat() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("sniffFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveSource_RemoteOnExtended(t *testing.T) {
	ext := Bundle{Name: BundleExtended, Threads: 4, Extensions: []string{"httpfs"}}

	src, err := resolveSource("https://d37ci6vzurychx.cloudfront.net/trip-data/green_tripdata_2023-01.parquet", ext)
	if err != nil {
		t.Fatalf("resolveSource() error = %v", err)
	}
	if !src.remote || src.format != FormatParquet {
		t.Errorf("source = %+v, want remote parquet", src)
	}
}
