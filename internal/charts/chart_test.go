// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package charts

import (
	"reflect"
	"testing"
)

func TestBuildAll(t *testing.T) {
	set := BuildAll(threeRides(), "en")

	if set.Locale != "en" || set.Rows != 3 {
		t.Errorf("Locale, Rows = %q, %d", set.Locale, set.Rows)
	}
	wantIDs := []string{IDRidesByWeekday, IDTipByHour, IDWeekdayVsWeekend}
	if len(set.Charts) != len(wantIDs) {
		t.Fatalf("len(Charts) = %d, want %d", len(set.Charts), len(wantIDs))
	}
	for i, id := range wantIDs {
		if set.Charts[i].Config.ID != id {
			t.Errorf("Charts[%d].ID = %q, want %q", i, set.Charts[i].Config.ID, id)
		}
	}

	c, ok := set.Get(IDWeekdayVsWeekend)
	if !ok {
		t.Fatal("Get(weekday-vs-weekend) not found")
	}
	if c.Config.Kind != KindBar {
		t.Errorf("Kind = %q, want bar", c.Config.Kind)
	}
	if _, ok := set.Get("nope"); ok {
		t.Error("Get(nope) should not be found")
	}
}

func TestBuildAll_PortugueseLabels(t *testing.T) {
	set := BuildAll(threeRides(), "pt-BR")

	weekday, _ := set.Get(IDRidesByWeekday)
	if weekday.Series.Points[0].Label != "Domingo" || weekday.Series.Points[6].Label != "Sábado" {
		t.Errorf("labels = %q..%q", weekday.Series.Points[0].Label, weekday.Series.Points[6].Label)
	}
	if weekday.Config.XAxis != "Dia da Semana" || weekday.Config.YAxis != "Número de Corridas" {
		t.Errorf("axes = %q / %q", weekday.Config.XAxis, weekday.Config.YAxis)
	}

	dayType, _ := set.Get(IDWeekdayVsWeekend)
	if dayType.Series.Points[0].Label != "Dia de Semana" || dayType.Series.Points[1].Label != "Fim de Semana" {
		t.Errorf("day type labels = %q, %q", dayType.Series.Points[0].Label, dayType.Series.Points[1].Label)
	}
}

func TestBuildAll_UnknownLocaleFallsBack(t *testing.T) {
	set := BuildAll(nil, "xx")
	if set.Locale != DefaultLocale {
		t.Errorf("Locale = %q, want %q", set.Locale, DefaultLocale)
	}
}

func TestRelabel(t *testing.T) {
	en := BuildAll(threeRides(), "en")
	pt := BuildAll(threeRides(), "pt-BR")

	if got := en.Relabel("pt-BR"); !reflect.DeepEqual(got, pt) {
		t.Errorf("Relabel(pt-BR) = %+v, want %+v", got, pt)
	}
	// The source set keeps its own labels.
	c, _ := en.Get(IDRidesByWeekday)
	if c.Series.Points[0].Label != "Sunday" {
		t.Errorf("Relabel modified the receiver: %q", c.Series.Points[0].Label)
	}
}

func TestChartSet_Empty(t *testing.T) {
	if !(ChartSet{}).Empty() {
		t.Error("zero ChartSet should be empty")
	}
	if BuildAll(nil, "en").Empty() {
		t.Error("BuildAll always yields charts")
	}
}

func TestLocales(t *testing.T) {
	for _, loc := range Locales() {
		if LabelsFor(loc).Locale != loc {
			t.Errorf("LabelsFor(%q).Locale = %q", loc, LabelsFor(loc).Locale)
		}
	}
}
