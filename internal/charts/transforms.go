// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

// Package charts turns query rows into the three chart series RideCharts
// serves. Every function here is pure: same rows in, same series out, and
// the rows are never modified.
//
// Rows whose key column is missing, not an integer, or out of range are
// skipped and counted in Series.Skipped. They never cause an error.
package charts

import (
	"fmt"
	"sort"

	"github.com/tomtom215/ridecharts/internal/engine"
)

// Column names the transforms read.
const (
	ColDayOfWeek = "pickup_day_of_week"
	ColHour      = "pickup_hour"
	ColTip       = "tip_amount"
)

// Point is one chart datum. Key is the grouping value (day, hour or day
// type) and fixes the order; Label is for display.
type Point struct {
	Key   int     `json:"key"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Series is an ordered list of points.
type Series struct {
	Points  []Point `json:"points"`
	Skipped int     `json:"skipped"`
}

// DayType splits the week in two.
type DayType int

const (
	DayTypeWeekday DayType = 0
	DayTypeWeekend DayType = 1
)

// DayTypeOf classifies a day of week (0 = Sunday). Days 0 and 6 are the weekend.
func DayTypeOf(day int) DayType {
	if day == 0 || day == 6 {
		return DayTypeWeekend
	}
	return DayTypeWeekday
}

// intInRange reads col as an integer in [lo, hi].
func intInRange(row engine.Row, col string, lo, hi int64) (int, bool) {
	v, ok := row.Int(col)
	if !ok || v < lo || v > hi {
		return 0, false
	}
	return int(v), true
}

// RideCountsByWeekday counts rows per day of week. The result always has
// seven points, Sunday (0) through Saturday (6), with zero for days that
// have no rides.
func RideCountsByWeekday(rows []engine.Row, labels Labels) Series {
	var counts [7]int
	skipped := 0
	for _, row := range rows {
		day, ok := intInRange(row, ColDayOfWeek, 0, 6)
		if !ok {
			skipped++
			continue
		}
		counts[day]++
	}

	points := make([]Point, 7)
	for day := range counts {
		points[day] = Point{Key: day, Label: labels.Weekdays[day], Value: float64(counts[day])}
	}
	return Series{Points: points, Skipped: skipped}
}

// MeanTipByHour averages the tip per pickup hour. Null tips are left out of
// both the sum and the count. Hours with no non-null tip are absent from the
// result rather than reported as zero, since a mean over nothing is undefined.
func MeanTipByHour(rows []engine.Row) Series {
	type acc struct {
		sum   float64
		count int
	}
	byHour := make(map[int]*acc)
	skipped := 0

	for _, row := range rows {
		hour, ok := intInRange(row, ColHour, 0, 23)
		if !ok {
			skipped++
			continue
		}
		raw, present := row[ColTip]
		if !present || raw == nil {
			continue
		}
		tip, ok := row.Float(ColTip)
		if !ok {
			skipped++
			continue
		}
		a := byHour[hour]
		if a == nil {
			a = &acc{}
			byHour[hour] = a
		}
		a.sum += tip
		a.count++
	}

	hours := make([]int, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	points := make([]Point, 0, len(hours))
	for _, h := range hours {
		a := byHour[h]
		points = append(points, Point{
			Key:   h,
			Label: fmt.Sprintf("%02d:00", h),
			Value: a.sum / float64(a.count),
		})
	}
	return Series{Points: points, Skipped: skipped}
}

// CountsByDayType counts weekday and weekend rides. The result is always
// exactly [weekday, weekend], zero-filled.
func CountsByDayType(rows []engine.Row, labels Labels) Series {
	var counts [2]int
	skipped := 0
	for _, row := range rows {
		day, ok := intInRange(row, ColDayOfWeek, 0, 6)
		if !ok {
			skipped++
			continue
		}
		counts[DayTypeOf(day)]++
	}

	return Series{
		Points: []Point{
			{Key: int(DayTypeWeekday), Label: labels.Weekday, Value: float64(counts[DayTypeWeekday])},
			{Key: int(DayTypeWeekend), Label: labels.Weekend, Value: float64(counts[DayTypeWeekend])},
		},
		Skipped: skipped,
	}
}
