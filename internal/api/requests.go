// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package api

import (
	"net/http"

	"github.com/tomtom215/ridecharts/internal/validation"
)

// ChartsRequest holds the query parameters of the chart endpoints.
type ChartsRequest struct {
	Locale string `validate:"omitempty,chartlocale"`
}

// parseChartsRequest reads and validates chart query parameters. On failure
// it writes a 400 and returns false.
func parseChartsRequest(w http.ResponseWriter, r *http.Request) (ChartsRequest, bool) {
	req := ChartsRequest{Locale: r.URL.Query().Get("locale")}
	if verr := validation.ValidateStruct(req); verr != nil {
		apiErr := verr.ToAPIError()
		respondAPIError(w, r, http.StatusBadRequest, &APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		})
		return ChartsRequest{}, false
	}
	return req, true
}
