// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package engine

import (
	"fmt"
	"runtime"
)

// Bundle names.
const (
	BundleAuto     = "auto"
	BundleBaseline = "baseline"
	BundleExtended = "extended"
)

// Capabilities is what the host probe reports.
type Capabilities struct {
	CPUs       int
	MaxProcs   int
	GOOS       string
	GOARCH     string
	Extensions bool // false on platforms without prebuilt DuckDB extensions
}

// ProbeHost inspects the running process.
func ProbeHost() Capabilities {
	return Capabilities{
		CPUs:       runtime.NumCPU(),
		MaxProcs:   runtime.GOMAXPROCS(0),
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		Extensions: runtime.GOOS == "linux" || runtime.GOOS == "darwin" || runtime.GOOS == "windows",
	}
}

// Bundle is one engine runtime profile.
type Bundle struct {
	Name string

	// Threads is the DuckDB worker thread count.
	Threads int

	// Extensions may be loaded on demand, e.g. httpfs for remote sources.
	Extensions []string
}

// AllowsRemote reports whether the bundle can read http(s) sources.
func (b Bundle) AllowsRemote() bool {
	return b.hasExtension("httpfs")
}

func (b Bundle) hasExtension(name string) bool {
	for _, ext := range b.Extensions {
		if ext == name {
			return true
		}
	}
	return false
}

// SelectBundle picks exactly one bundle for the host. pref is one of the
// Bundle* names; "" means auto.
//
// The baseline bundle runs single-threaded with no extensions and fits any
// host. The extended bundle needs more than one usable CPU and extension
// support, and adds httpfs for remote datasets.
func SelectBundle(pref string, caps Capabilities) (Bundle, error) {
	usable := caps.CPUs
	if caps.MaxProcs > 0 && caps.MaxProcs < usable {
		usable = caps.MaxProcs
	}
	extendedOK := usable > 1 && caps.Extensions

	baseline := Bundle{Name: BundleBaseline, Threads: 1}
	extended := Bundle{Name: BundleExtended, Threads: usable, Extensions: []string{"httpfs"}}

	switch pref {
	case "", BundleAuto:
		if extendedOK {
			return extended, nil
		}
		return baseline, nil
	case BundleBaseline:
		return baseline, nil
	case BundleExtended:
		if !extendedOK {
			return Bundle{}, fmt.Errorf("%w: extended bundle needs >1 CPU and extension support (have %d usable, extensions=%t)",
				ErrNoCompatibleBundle, usable, caps.Extensions)
		}
		return extended, nil
	default:
		return Bundle{}, fmt.Errorf("%w: unknown bundle %q", ErrNoCompatibleBundle, pref)
	}
}
