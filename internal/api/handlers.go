// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/ridecharts/internal/charts"
	"github.com/tomtom215/ridecharts/internal/engine"
	"github.com/tomtom215/ridecharts/internal/logging"
	"github.com/tomtom215/ridecharts/internal/pipeline"
	ws "github.com/tomtom215/ridecharts/internal/websocket"
)

// ChartPipeline is the pipeline surface the handlers use.
type ChartPipeline interface {
	State() pipeline.State
	Load(ctx context.Context) (charts.ChartSet, error)
	Clear(ctx context.Context)
	Ready() bool
	Err() error
	Registration() (engine.Registration, bool)
	Engine() pipeline.Engine
}

// Handler serves the HTTP API.
type Handler struct {
	pipeline    ChartPipeline
	wsHub       *ws.Hub
	corsOrigins []string
	startTime   time.Time
}

// NewHandler creates a handler. wsHub may be nil, which disables /ws.
func NewHandler(p ChartPipeline, wsHub *ws.Hub, corsOrigins []string) *Handler {
	return &Handler{
		pipeline:    p,
		wsHub:       wsHub,
		corsOrigins: corsOrigins,
		startTime:   time.Now(),
	}
}

// HealthLive reports that the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}, Metadata{})
}

// HealthReady reports 200 once the engine is provisioned and the dataset
// registered, 503 before that or after a failed start.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ready := h.pipeline.Ready()
	data := map[string]any{
		"ready":  ready,
		"uptime": time.Since(h.startTime).Seconds(),
	}
	if eng := h.pipeline.Engine(); eng != nil {
		data["engine_reachable"] = eng.Ping(r.Context()) == nil
		data["bundle"] = eng.Bundle().Name
		data["breaker"] = eng.BreakerState()
	}
	if err := h.pipeline.Err(); err != nil {
		data["error"] = err.Error()
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	respondJSON(w, code, &APIResponse{
		Status:   status,
		Data:     data,
		Metadata: Metadata{Timestamp: time.Now().UTC(), RequestID: logging.RequestIDFromContext(r.Context())},
	})
}

// Charts returns the chart store state, relabeled when ?locale= is given.
func (h *Handler) Charts(w http.ResponseWriter, r *http.Request) {
	req, ok := parseChartsRequest(w, r)
	if !ok {
		return
	}
	st := h.pipeline.State().Localized(req.Locale)
	respondSuccess(w, r, st, Metadata{Locale: stateLocale(st)})
}

// Chart returns one chart by id. It is 404 for unknown ids and while no
// charts are loaded.
func (h *Handler) Chart(w http.ResponseWriter, r *http.Request) {
	req, ok := parseChartsRequest(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	st := h.pipeline.State().Localized(req.Locale)
	if st.Charts == nil {
		respondError(w, r, http.StatusNotFound, ErrCodeNotLoaded, "Charts are not loaded", nil)
		return
	}
	c, found := st.Charts.Get(id)
	if !found {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Unknown chart: "+sanitizeLogValue(id), nil)
		return
	}
	respondSuccess(w, r, c, Metadata{Locale: st.Charts.Locale})
}

// LoadCharts is the "load" trigger: it rebuilds all charts.
func (h *Handler) LoadCharts(w http.ResponseWriter, r *http.Request) {
	req, ok := parseChartsRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	set, err := h.pipeline.Load(r.Context())
	if err != nil {
		h.respondLoadError(w, r, err)
		return
	}
	if req.Locale != "" && req.Locale != set.Locale {
		set = set.Relabel(req.Locale)
	}
	respondSuccess(w, r, set, Metadata{
		QueryTimeMS: time.Since(start).Milliseconds(),
		Locale:      set.Locale,
	})
}

// respondLoadError maps pipeline errors to status codes: 503 before the
// pipeline is ready or while the engine is unavailable, 400 for any
// *engine.QueryError, 500 otherwise.
func (h *Handler) respondLoadError(w http.ResponseWriter, r *http.Request, err error) {
	var qe *engine.QueryError
	switch {
	case errors.Is(err, pipeline.ErrNotReady):
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Pipeline is not ready", err)
	case errors.As(err, &qe):
		respondAPIError(w, r, http.StatusBadRequest, &APIError{
			Code:    ErrCodeQueryFailed,
			Message: "Query rejected by the engine",
			Details: map[string]any{"kind": string(qe.Kind), "error": qe.Err.Error()},
		})
	case errors.Is(err, engine.ErrEngineUnavailable), errors.Is(err, engine.ErrEngineClosed):
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Engine unavailable", err)
	default:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Chart load failed", err)
	}
}

// ClearCharts is the "clear" trigger.
func (h *Handler) ClearCharts(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Clear(r.Context())
	respondSuccess(w, r, h.pipeline.State(), Metadata{})
}

// Dataset returns the registered dataset and engine bundle.
func (h *Handler) Dataset(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.pipeline.Registration()
	if !ok {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Dataset is not registered", nil)
		return
	}
	data := map[string]any{"registration": reg}
	if eng := h.pipeline.Engine(); eng != nil {
		b := eng.Bundle()
		data["bundle"] = map[string]any{"name": b.Name, "threads": b.Threads, "remote_sources": b.AllowsRemote()}
	}
	respondSuccess(w, r, data, Metadata{})
}

// WebSocket upgrades the connection, sends the current chart state and
// registers the client for push updates.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "WebSocket service unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.SetSnapshot(func() (ws.Message, uint64) {
		st := h.pipeline.State()
		return ws.Message{Type: ws.MessageTypeSnapshot, Data: st}, st.Version
	})
	if !h.wsHub.RegisterClient(client) {
		_ = conn.Close()
		return
	}
	client.Start()
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin allows requests without an Origin header (non-browser
// clients) and browser origins listed in the CORS configuration.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

func stateLocale(st pipeline.State) string {
	if st.Charts == nil {
		return ""
	}
	return st.Charts.Locale
}
