// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package charts

import "github.com/tomtom215/ridecharts/internal/engine"

// Chart identifiers, stable across locales.
const (
	IDRidesByWeekday   = "rides-by-weekday"
	IDTipByHour        = "tip-by-hour"
	IDWeekdayVsWeekend = "weekday-vs-weekend"
)

// Kind is the mark a renderer should draw.
type Kind string

const (
	KindLine Kind = "line"
	KindBar  Kind = "bar"
)

// ChartConfig describes how a series should be drawn.
type ChartConfig struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Title  string `json:"title"`
	XAxis  string `json:"x_axis"`
	YAxis  string `json:"y_axis"`
	Locale string `json:"locale"`
}

// Chart is a series plus its presentation metadata.
type Chart struct {
	Config ChartConfig `json:"config"`
	Series Series      `json:"series"`
}

// ChartSet is the full output of one pipeline run, in display order.
type ChartSet struct {
	Locale string  `json:"locale"`
	Rows   int     `json:"rows"`
	Charts []Chart `json:"charts"`
}

// Get looks a chart up by id.
func (s ChartSet) Get(id string) (Chart, bool) {
	for _, c := range s.Charts {
		if c.Config.ID == id {
			return c, true
		}
	}
	return Chart{}, false
}

// Empty reports whether the set holds no charts.
func (s ChartSet) Empty() bool {
	return len(s.Charts) == 0
}

// BuildAll runs every transform over rows and labels the result for locale.
func BuildAll(rows []engine.Row, locale string) ChartSet {
	l := LabelsFor(locale)

	return ChartSet{
		Locale: l.Locale,
		Rows:   len(rows),
		Charts: []Chart{
			{
				Config: ChartConfig{
					ID: IDRidesByWeekday, Kind: KindLine, Locale: l.Locale,
					Title: l.RidesByWeekdayTitle, XAxis: l.AxisDayOfWeek, YAxis: l.AxisRideCount,
				},
				Series: RideCountsByWeekday(rows, l),
			},
			{
				Config: ChartConfig{
					ID: IDTipByHour, Kind: KindLine, Locale: l.Locale,
					Title: l.TipByHourTitle, XAxis: l.AxisHourOfDay, YAxis: l.AxisMeanTip,
				},
				Series: MeanTipByHour(rows),
			},
			{
				Config: ChartConfig{
					ID: IDWeekdayVsWeekend, Kind: KindBar, Locale: l.Locale,
					Title: l.DayTypeTitle, XAxis: l.AxisDayType, YAxis: l.AxisRideCount,
				},
				Series: CountsByDayType(rows, l),
			},
		},
	}
}

// Relabel returns a copy of s with labels and titles in another locale.
// Values are untouched, so callers can serve one run in several languages
// without re-querying.
func (s ChartSet) Relabel(locale string) ChartSet {
	l := LabelsFor(locale)
	out := ChartSet{Locale: l.Locale, Rows: s.Rows, Charts: make([]Chart, len(s.Charts))}

	for i, c := range s.Charts {
		cfg := c.Config
		cfg.Locale = l.Locale
		points := make([]Point, len(c.Series.Points))
		copy(points, c.Series.Points)

		switch cfg.ID {
		case IDRidesByWeekday:
			cfg.Title, cfg.XAxis, cfg.YAxis = l.RidesByWeekdayTitle, l.AxisDayOfWeek, l.AxisRideCount
			for j := range points {
				if k := points[j].Key; k >= 0 && k < len(l.Weekdays) {
					points[j].Label = l.Weekdays[k]
				}
			}
		case IDTipByHour:
			cfg.Title, cfg.XAxis, cfg.YAxis = l.TipByHourTitle, l.AxisHourOfDay, l.AxisMeanTip
		case IDWeekdayVsWeekend:
			cfg.Title, cfg.XAxis, cfg.YAxis = l.DayTypeTitle, l.AxisDayType, l.AxisRideCount
			for j := range points {
				if DayType(points[j].Key) == DayTypeWeekend {
					points[j].Label = l.Weekend
				} else {
					points[j].Label = l.Weekday
				}
			}
		}
		out.Charts[i] = Chart{Config: cfg, Series: Series{Points: points, Skipped: c.Series.Skipped}}
	}
	return out
}
