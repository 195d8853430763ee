// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package charts

// Labels is one locale's presentation text.
type Labels struct {
	Locale string

	// Weekdays is indexed by day of week, 0 = Sunday.
	Weekdays [7]string

	Weekday string
	Weekend string

	RidesByWeekdayTitle string
	TipByHourTitle      string
	DayTypeTitle        string

	AxisDayOfWeek string
	AxisRideCount string
	AxisHourOfDay string
	AxisMeanTip   string
	AxisDayType   string
}

// DefaultLocale is used when a request names no locale or an unknown one.
const DefaultLocale = "en"

var labelSets = map[string]Labels{
	"en": {
		Locale:              "en",
		Weekdays:            [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
		Weekday:             "Weekday",
		Weekend:             "Weekend",
		RidesByWeekdayTitle: "Rides by day of week",
		TipByHourTitle:      "Average tip by hour",
		DayTypeTitle:        "Weekday vs weekend rides",
		AxisDayOfWeek:       "Day of week",
		AxisRideCount:       "Number of rides",
		AxisHourOfDay:       "Hour of day (24h)",
		AxisMeanTip:         "Average tip",
		AxisDayType:         "Day type",
	},
	"pt-BR": {
		Locale:              "pt-BR",
		Weekdays:            [7]string{"Domingo", "Segunda", "Terça", "Quarta", "Quinta", "Sexta", "Sábado"},
		Weekday:             "Dia de Semana",
		Weekend:             "Fim de Semana",
		RidesByWeekdayTitle: "Corridas por dia da semana",
		TipByHourTitle:      "Gorjeta média por hora",
		DayTypeTitle:        "Dia de semana vs fim de semana",
		AxisDayOfWeek:       "Dia da Semana",
		AxisRideCount:       "Número de Corridas",
		AxisHourOfDay:       "Hora do Dia (24h)",
		AxisMeanTip:         "Gorjeta Média",
		AxisDayType:         "Tipo de Dia",
	},
}

// LabelsFor returns the label set for locale, falling back to English.
func LabelsFor(locale string) Labels {
	if l, ok := labelSets[locale]; ok {
		return l
	}
	return labelSets[DefaultLocale]
}

// Locales returns the supported locale names.
func Locales() []string {
	return []string{"en", "pt-BR"}
}
