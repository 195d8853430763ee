// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/ridecharts/internal/charts"
	"github.com/tomtom215/ridecharts/internal/config"
	"github.com/tomtom215/ridecharts/internal/engine"
	"github.com/tomtom215/ridecharts/internal/logging"
	"github.com/tomtom215/ridecharts/internal/pipeline"
	ws "github.com/tomtom215/ridecharts/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

// stubEngine answers every query with rows or execErr.
type stubEngine struct {
	rows    []engine.Row
	execErr error
}

func (s *stubEngine) LoadDataset(_ context.Context, source, table string) (engine.Registration, error) {
	return engine.Registration{Table: table, Source: source, Format: engine.FormatCSV, Rows: int64(len(s.rows))}, nil
}

func (s *stubEngine) Execute(context.Context, string) (*engine.Result, error) {
	if s.execErr != nil {
		return nil, s.execErr
	}
	return &engine.Result{Rows: s.rows}, nil
}

func (s *stubEngine) Ping(context.Context) error { return nil }
func (s *stubEngine) Bundle() engine.Bundle     { return engine.Bundle{Name: engine.BundleBaseline, Threads: 1} }
func (s *stubEngine) BreakerState() string      { return "closed" }
func (s *stubEngine) Close() error              { return nil }

func threeRides() []engine.Row {
	return []engine.Row{
		{charts.ColDayOfWeek: int64(0), charts.ColHour: int64(3), charts.ColTip: 2.0},
		{charts.ColDayOfWeek: int64(0), charts.ColHour: int64(3), charts.ColTip: 4.0},
		{charts.ColDayOfWeek: int64(1), charts.ColHour: int64(10), charts.ColTip: 1.0},
	}
}

// newTestServer starts a pipeline over eng (nil means a failed start) and
// serves it through the full router.
func newTestServer(t *testing.T, eng *stubEngine, mwCfg *MiddlewareConfig) (*httptest.Server, *pipeline.Pipeline) {
	t.Helper()
	p := pipeline.New(pipeline.Options{
		Source: "rides.csv",
		Table:  "rides",
		Query:  "SELECT 1",
		Open: func(context.Context) (pipeline.Engine, error) {
			if eng == nil {
				return nil, errors.New("no engine")
			}
			return eng, nil
		},
	})
	_ = p.Start(context.Background())
	t.Cleanup(func() { _ = p.Close() })

	if mwCfg == nil {
		mwCfg = DefaultMiddlewareConfig()
		mwCfg.RateLimitDisabled = true
	}
	srv := httptest.NewServer(NewRouter(NewHandler(p, nil, nil), NewMiddleware(mwCfg)))
	t.Cleanup(srv.Close)
	return srv, p
}

type envelope struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Metadata Metadata        `json:"metadata"`
	Error    *APIError       `json:"error"`
}

func do(t *testing.T, srv *httptest.Server, method, path string) (int, envelope, http.Header) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var env envelope
	if len(body) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(body, &env); err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
	}
	return resp.StatusCode, env, resp.Header
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name      string
		eng       *stubEngine
		path      string
		want      int
		wantState string
	}{
		{"live", &stubEngine{}, "/api/v1/health/live", http.StatusOK, "success"},
		{"ready", &stubEngine{}, "/api/v1/health/ready", http.StatusOK, "ready"},
		{"not ready after failed start", nil, "/api/v1/health/ready", http.StatusServiceUnavailable, "not_ready"},
		{"live after failed start", nil, "/api/v1/health/live", http.StatusOK, "success"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.eng, nil)
			code, env, hdr := do(t, srv, http.MethodGet, tt.path)
			if code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
			if env.Status != tt.wantState {
				t.Errorf("envelope status = %q, want %q", env.Status, tt.wantState)
			}
			if hdr.Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
			if hdr.Get("X-Content-Type-Options") != "nosniff" {
				t.Error("missing security headers")
			}
		})
	}
}

func TestLoadCharts(t *testing.T) {
	srv, p := newTestServer(t, &stubEngine{rows: threeRides()}, nil)

	code, env, _ := do(t, srv, http.MethodPost, "/api/v1/charts/load?locale=pt-BR")
	if code != http.StatusOK {
		t.Fatalf("status = %d, error = %+v", code, env.Error)
	}
	if env.Metadata.Locale != "pt-BR" {
		t.Errorf("metadata locale = %q", env.Metadata.Locale)
	}

	var set charts.ChartSet
	if err := json.Unmarshal(env.Data, &set); err != nil {
		t.Fatal(err)
	}
	if set.Rows != 3 || len(set.Charts) != 3 {
		t.Fatalf("set = %+v", set)
	}
	weekday, _ := set.Get(charts.IDRidesByWeekday)
	if weekday.Series.Points[0].Label != "Domingo" || weekday.Series.Points[0].Value != 2 {
		t.Errorf("weekday[0] = %+v", weekday.Series.Points[0])
	}

	// The store keeps the pipeline locale; only the response was relabeled.
	st := p.State()
	if st.Status != pipeline.StatusReady || st.Charts.Locale != charts.DefaultLocale {
		t.Errorf("state = %s / %s", st.Status, st.Charts.Locale)
	}
}

func TestLoadCharts_Errors(t *testing.T) {
	tests := []struct {
		name     string
		eng      *stubEngine
		want     int
		wantCode string
		wantKind string
	}{
		{"not ready", nil, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, ""},
		{
			"catalog error",
			&stubEngine{execErr: &engine.QueryError{Kind: engine.QueryKindCatalog, Err: errors.New("table missing")}},
			http.StatusBadRequest, ErrCodeQueryFailed, "catalog",
		},
		{
			"timeout",
			&stubEngine{execErr: &engine.QueryError{Kind: engine.QueryKindTimeout, Err: context.DeadlineExceeded}},
			http.StatusBadRequest, ErrCodeQueryFailed, "timeout",
		},
		{"engine closed", &stubEngine{execErr: engine.ErrEngineClosed}, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, ""},
		{"unexpected", &stubEngine{execErr: errors.New("boom")}, http.StatusInternalServerError, ErrCodeInternalError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.eng, nil)
			code, env, _ := do(t, srv, http.MethodPost, "/api/v1/charts/load")
			if code != tt.want {
				t.Fatalf("status = %d, want %d", code, tt.want)
			}
			if env.Status != "error" || env.Error == nil || env.Error.Code != tt.wantCode {
				t.Fatalf("envelope = %+v", env)
			}
			if tt.wantKind != "" {
				details, _ := env.Error.Details.(map[string]any)
				if details["kind"] != tt.wantKind {
					t.Errorf("details = %v, want kind %q", env.Error.Details, tt.wantKind)
				}
			}
		})
	}
}

func TestCharts_StateAndClear(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{rows: threeRides()}, nil)

	var st pipeline.State
	_, env, _ := do(t, srv, http.MethodGet, "/api/v1/charts")
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatal(err)
	}
	if st.Status != pipeline.StatusEmpty || st.Charts != nil {
		t.Errorf("initial state = %+v", st)
	}

	do(t, srv, http.MethodPost, "/api/v1/charts/load")
	_, env, _ = do(t, srv, http.MethodGet, "/api/v1/charts?locale=pt-BR")
	st = pipeline.State{}
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatal(err)
	}
	if st.Status != pipeline.StatusReady || st.Charts == nil || st.Charts.Locale != "pt-BR" {
		t.Fatalf("loaded state = %+v", st)
	}

	code, env, _ := do(t, srv, http.MethodPost, "/api/v1/charts/clear")
	if code != http.StatusOK {
		t.Fatalf("clear status = %d", code)
	}
	st = pipeline.State{}
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatal(err)
	}
	if st.Status != pipeline.StatusEmpty || st.Charts != nil {
		t.Errorf("state after clear = %+v", st)
	}
}

func TestChart(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{rows: threeRides()}, nil)

	code, env, _ := do(t, srv, http.MethodGet, "/api/v1/charts/"+charts.IDTipByHour)
	if code != http.StatusNotFound || env.Error.Code != ErrCodeNotLoaded {
		t.Fatalf("before load: %d %+v", code, env.Error)
	}

	do(t, srv, http.MethodPost, "/api/v1/charts/load")

	code, env, _ = do(t, srv, http.MethodGet, "/api/v1/charts/"+charts.IDTipByHour)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var c charts.Chart
	if err := json.Unmarshal(env.Data, &c); err != nil {
		t.Fatal(err)
	}
	if len(c.Series.Points) != 2 || c.Series.Points[0].Key != 3 || c.Series.Points[0].Value != 3 {
		t.Errorf("tip series = %+v", c.Series.Points)
	}

	code, env, _ = do(t, srv, http.MethodGet, "/api/v1/charts/nope")
	if code != http.StatusNotFound || env.Error.Code != ErrCodeNotFound {
		t.Errorf("unknown id: %d %+v", code, env.Error)
	}
}

func TestLocaleValidation(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{rows: threeRides()}, nil)

	for _, path := range []string{"/api/v1/charts?locale=fr", "/api/v1/charts/load?locale=xx"} {
		method := http.MethodGet
		if strings.Contains(path, "load") {
			method = http.MethodPost
		}
		code, env, _ := do(t, srv, method, path)
		if code != http.StatusBadRequest || env.Error == nil || env.Error.Code != ErrCodeValidation {
			t.Errorf("%s: %d %+v", path, code, env.Error)
		}
	}
}

func TestDataset(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{rows: threeRides()}, nil)
	code, env, _ := do(t, srv, http.MethodGet, "/api/v1/dataset")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var data struct {
		Registration engine.Registration `json:"registration"`
		Bundle       struct {
			Name string `json:"name"`
		} `json:"bundle"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Registration.Table != "rides" || data.Bundle.Name != engine.BundleBaseline {
		t.Errorf("dataset = %+v", data)
	}

	failed, _ := newTestServer(t, nil, nil)
	if code, _, _ := do(t, failed, http.MethodGet, "/api/v1/dataset"); code != http.StatusServiceUnavailable {
		t.Errorf("failed start: status = %d", code)
	}
}

func TestWebSocket_Disabled(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{}, nil)
	if code, _, _ := do(t, srv, http.MethodGet, "/api/v1/ws"); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without a hub", code)
	}
}

// newWebSocketServer serves a started pipeline with a running hub and the
// no CORS origins configured.
func newWebSocketServer(t *testing.T) (*httptest.Server, *pipeline.Pipeline) {
	t.Helper()
	p := pipeline.New(pipeline.Options{
		Source: "rides.csv",
		Table:  "rides",
		Query:  "SELECT 1",
		Open:   func(context.Context) (pipeline.Engine, error) { return &stubEngine{rows: threeRides()}, nil },
	})
	_ = p.Start(context.Background())
	t.Cleanup(func() { _ = p.Close() })

	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	mwCfg := MiddlewareConfigFrom(&config.ServerConfig{RateLimitDisabled: true})
	srv := httptest.NewServer(NewRouter(NewHandler(p, hub, mwCfg.CORSAllowedOrigins), NewMiddleware(mwCfg)))
	t.Cleanup(srv.Close)
	return srv, p
}

func TestWebSocket_SnapshotCarriesStateVersion(t *testing.T) {
	srv, p := newWebSocketServer(t)
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := p.State().Version

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg struct {
		Type string         `json:"type"`
		Data pipeline.State `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if msg.Type != ws.MessageTypeSnapshot {
		t.Errorf("type = %q, want %q", msg.Type, ws.MessageTypeSnapshot)
	}
	if msg.Data.Version != want || msg.Data.Status != pipeline.StatusReady {
		t.Errorf("snapshot = version %d status %q, want version %d ready", msg.Data.Version, msg.Data.Status, want)
	}
}

func TestWebSocket_DefaultConfigRejectsBrowserOrigins(t *testing.T) {
	srv, _ := newWebSocketServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if conn != nil {
		conn.Close()
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err == nil {
		t.Fatal("dial with a foreign Origin succeeded under default config")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{}, nil)
	if code, env, _ := do(t, srv, http.MethodGet, "/api/v1/nothing"); code != http.StatusNotFound || env.Status != "error" {
		t.Errorf("unknown path: %d %+v", code, env)
	}
	if code, _, _ := do(t, srv, http.MethodPost, "/api/v1/charts"); code != http.StatusMethodNotAllowed {
		t.Errorf("POST charts: %d", code)
	}
}

func TestCORS(t *testing.T) {
	cfg := DefaultMiddlewareConfig()
	cfg.RateLimitDisabled = true
	cfg.CORSAllowedOrigins = []string{"https://dash.example"}
	srv, _ := newTestServer(t, &stubEngine{}, cfg)

	tests := []struct {
		origin string
		want   string
	}{
		{"https://dash.example", "https://dash.example"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/health/live", nil)
			req.Header.Set("Origin", tt.origin)
			resp, err := srv.Client().Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultMiddlewareConfig()
	cfg.RateLimitRequests = 2
	srv, _ := newTestServer(t, &stubEngine{}, cfg)

	var last int
	var env envelope
	for i := 0; i < 3; i++ {
		last, env, _ = do(t, srv, http.MethodGet, "/api/v1/charts")
	}
	if last != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("third request: %d %+v", last, env.Error)
	}
}

func TestMiddlewareConfigFrom(t *testing.T) {
	tests := []struct {
		name         string
		reqs         int
		disabled     bool
		wantDisabled bool
	}{
		{"enabled", 50, false, false},
		{"zero disables", 0, false, true},
		{"explicit disable", 50, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := MiddlewareConfigFrom(&config.ServerConfig{RateLimitReqs: tt.reqs, RateLimitDisabled: tt.disabled})
			if mc.RateLimitDisabled != tt.wantDisabled {
				t.Errorf("RateLimitDisabled = %v, want %v", mc.RateLimitDisabled, tt.wantDisabled)
			}
		})
	}
}

func TestCheckWebSocketOrigin(t *testing.T) {
	h := NewHandler(nil, nil, []string{"https://dash.example"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://dash.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := h.checkWebSocketOrigin(r); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("a\nb\x7fc"); got != "a b c" {
		t.Errorf("sanitizeLogValue() = %q", got)
	}
}
