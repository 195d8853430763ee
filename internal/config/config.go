// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

// Package config loads RideCharts configuration from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence
// (env wins). See LoadWithKoanf.
package config

import "time"

// Config is the complete process configuration.
type Config struct {
	Dataset  DatasetConfig  `koanf:"dataset"`
	Engine   EngineConfig   `koanf:"engine"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Charts   ChartsConfig   `koanf:"charts"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DatasetConfig names the file registered at startup and the table it becomes.
type DatasetConfig struct {
	// Source is a local path, file:// URI or http(s):// URL.
	Source string `koanf:"source" validate:"required"`

	// Table is the name the dataset is registered under.
	Table string `koanf:"table" validate:"required,sqlident"`
}

// EngineConfig controls the embedded DuckDB instance.
type EngineConfig struct {
	// Path is the DuckDB database path. ":memory:" (default) keeps
	// nothing across restarts.
	Path string `koanf:"path"`

	// Bundle forces a runtime bundle: auto, baseline or extended.
	Bundle string `koanf:"bundle" validate:"oneof=auto baseline extended"`

	Threads   int    `koanf:"threads" validate:"min=0"` // 0 = bundle default
	MaxMemory string `koanf:"max_memory"`

	// ProvisionTimeout bounds how long Provision waits for the worker.
	ProvisionTimeout time.Duration `koanf:"provision_timeout"`

	// QueryTimeout bounds each query. 0 disables the limit.
	QueryTimeout time.Duration `koanf:"query_timeout"`

	// BreakerFailures is the consecutive engine failure count that trips
	// the circuit breaker.
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"min=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// PipelineConfig holds the query run on every "load".
type PipelineConfig struct {
	// Query is the SQL text. {{table}} is replaced with Dataset.Table.
	Query string `koanf:"query"`

	// QueryFile, when set, is read at startup and replaces Query.
	QueryFile string `koanf:"query_file"`

	// LoadOnStart runs one load as soon as the dataset is registered.
	LoadOnStart bool `koanf:"load_on_start"`
}

// ChartsConfig holds presentation defaults.
type ChartsConfig struct {
	Locale string `koanf:"locale" validate:"chartlocale"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json (default) or console.
	Format string `koanf:"format"`

	// Caller includes file:line in each entry.
	Caller bool `koanf:"caller"`
}
