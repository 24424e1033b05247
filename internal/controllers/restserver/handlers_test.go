package restserver

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/climate-api/internal/database"
	"github.com/chrissnell/climate-api/pkg/config"
)

func ptr(v float64) *float64 { return &v }

func newTestStore(t *testing.T) *database.Client {
	t.Helper()

	c := database.NewClient(config.StorageData{
		Driver:       config.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "climate.sqlite"),
		MaxOpenConns: 2,
	}, zap.NewNop().Sugar())
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := c.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	stations := []database.Station{
		{Station: "USC00519397", Name: "WAIKIKI 717.2, HI US"},
		{Station: "USC00513117", Name: "KANEOHE 838.1, HI US"},
	}
	if err := c.DB.Create(&stations).Error; err != nil {
		t.Fatalf("insert stations: %v", err)
	}

	measurements := []database.Measurement{
		{Station: "USC00519397", Date: "2016-08-23", Prcp: ptr(0.1), Tobs: 81},
		{Station: "USC00519397", Date: "2017-01-01", Prcp: ptr(0.5), Tobs: 66},
		{Station: "USC00513117", Date: "2017-01-01", Prcp: ptr(0.2), Tobs: 62},
		{Station: "USC00519397", Date: "2017-06-01", Tobs: 60},
		{Station: "USC00513117", Date: "2017-06-01", Tobs: 70},
		{Station: "USC00519397", Date: "2017-06-02", Prcp: ptr(0), Tobs: 80},
		{Station: "USC00519397", Date: "2017-08-23", Prcp: ptr(0), Tobs: 82},
		{Station: "USC00513117", Date: "2017-08-24", Prcp: ptr(0.03), Tobs: 83},
	}
	if err := c.DB.Create(&measurements).Error; err != nil {
		t.Fatalf("insert measurements: %v", err)
	}
	return c
}

func newTestController(t *testing.T, store ClimateStore, climate config.ClimateData) *Controller {
	t.Helper()

	cfg := config.Defaults()
	if climate.ReferenceDate != "" {
		cfg.Climate = climate
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ctrl, err := NewController(ctx, &sync.WaitGroup{}, cfg, store, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return ctrl
}

func serve(t *testing.T, ctrl *Controller, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	ctrl.Handler().ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestServeIndex(t *testing.T) {
	ctrl := newTestController(t, newTestStore(t), config.ClimateData{})

	w := serve(t, ctrl, http.MethodGet, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"Available Routes:",
		"/api/v1.0/precipitation",
		"/api/v1.0/stations",
		"/api/v1.0/tobs",
		"/api/v1.0/&lt;start&gt;/&lt;end&gt;",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q: %s", want, body)
		}
	}
}

func TestGetPrecipitation(t *testing.T) {
	ctrl := newTestController(t, newTestStore(t), config.ClimateData{})

	w := serve(t, ctrl, http.MethodGet, "/api/v1.0/precipitation")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var entries []PrecipitationEntry
	decodeJSON(t, w, &entries)

	if len(entries) != 6 {
		t.Fatalf("got %d entries, want 6 (one per distinct date)", len(entries))
	}

	count := 0
	for _, e := range entries {
		if e.Date != "2017-01-01" {
			continue
		}
		count++
		if e.Precipitation == nil || math.Abs(*e.Precipitation-0.35) > 1e-9 {
			t.Errorf("2017-01-01 precipitation = %v, want 0.35", e.Precipitation)
		}
	}
	if count != 1 {
		t.Errorf("2017-01-01 appears %d times, want 1", count)
	}

	if !strings.Contains(w.Body.String(), `{"date":"2017-06-01","precipitation":null}`) {
		t.Errorf("expected null precipitation for 2017-06-01: %s", w.Body.String())
	}
}

func TestGetStations(t *testing.T) {
	ctrl := newTestController(t, newTestStore(t), config.ClimateData{})

	w := serve(t, ctrl, http.MethodGet, "/api/v1.0/stations")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var names []string
	decodeJSON(t, w, &names)

	want := []string{"KANEOHE 838.1, HI US", "WAIKIKI 717.2, HI US"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestGetTemperatureObservations(t *testing.T) {
	tests := []struct {
		name      string
		climate   config.ClimateData
		wantFirst string
		wantLen   int
	}{
		{
			name:      "fixed reference date",
			climate:   config.ClimateData{ReferenceDate: "2017-08-23", WindowDays: 365},
			wantFirst: "2017-08-23",
			wantLen:   6,
		},
		{
			name:      "latest reference date",
			climate:   config.ClimateData{ReferenceDate: config.ReferenceDateLatest, WindowDays: 365},
			wantFirst: "2017-08-24",
			wantLen:   7,
		},
		{
			name:      "short window",
			climate:   config.ClimateData{ReferenceDate: "2017-08-23", WindowDays: 90},
			wantFirst: "2017-08-23",
			wantLen:   4,
		},
	}

	store := newTestStore(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newTestController(t, store, tt.climate)

			w := serve(t, ctrl, http.MethodGet, "/api/v1.0/tobs")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}

			var pairs [][]any
			decodeJSON(t, w, &pairs)

			if len(pairs) != tt.wantLen {
				t.Fatalf("got %d pairs, want %d: %v", len(pairs), tt.wantLen, pairs)
			}
			if pairs[0][0] != tt.wantFirst {
				t.Errorf("first date = %v, want %s", pairs[0][0], tt.wantFirst)
			}
			for i, p := range pairs {
				if len(p) != 2 {
					t.Fatalf("pair %d = %v, want [date, tobs]", i, p)
				}
				if i > 0 && pairs[i-1][0].(string) < p[0].(string) {
					t.Errorf("pairs not sorted descending at %d", i)
				}
			}
		})
	}
}

func TestGetTemperatureSummaryFrom(t *testing.T) {
	ctrl := newTestController(t, newTestStore(t), config.ClimateData{})

	t.Run("matching start", func(t *testing.T) {
		w := serve(t, ctrl, http.MethodGet, "/api/v1.0/2017-06-01")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}

		var rows [][]any
		decodeJSON(t, w, &rows)
		if len(rows) != 1 || len(rows[0]) != 4 {
			t.Fatalf("got %v, want one [date, min, max, avg] tuple", rows)
		}
		row := rows[0]
		if row[0] != "2017-06-01" || row[1] != 60.0 || row[2] != 83.0 || row[3] != 75.0 {
			t.Errorf("summary = %v, want [2017-06-01 60 83 75]", row)
		}
	})

	t.Run("after last date", func(t *testing.T) {
		w := serve(t, ctrl, http.MethodGet, "/api/v1.0/2018-01-01")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if got := strings.TrimSpace(w.Body.String()); got != "[]" {
			t.Errorf("body = %s, want []", got)
		}
	})
}

func TestGetTemperatureSummaryBetween(t *testing.T) {
	ctrl := newTestController(t, newTestStore(t), config.ClimateData{})

	t.Run("two day range", func(t *testing.T) {
		w := serve(t, ctrl, http.MethodGet, "/api/v1.0/2017-06-01/2017-06-02")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}

		var tuple []float64
		decodeJSON(t, w, &tuple)
		if len(tuple) != 3 || tuple[0] != 60 || tuple[1] != 80 || tuple[2] != 70 {
			t.Errorf("summary = %v, want [60 80 70]", tuple)
		}
	})

	t.Run("no match", func(t *testing.T) {
		w := serve(t, ctrl, http.MethodGet, "/api/v1.0/2019-01-01/2019-02-01")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if got := strings.TrimSpace(w.Body.String()); got != "[null,null,null]" {
			t.Errorf("body = %s, want [null,null,null]", got)
		}
	})
}

func TestMsgPackFormat(t *testing.T) {
	ctrl := newTestController(t, newTestStore(t), config.ClimateData{})

	w := serve(t, ctrl, http.MethodGet, "/api/v1.0/precipitation?format=msgpack")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-msgpack" {
		t.Fatalf("Content-Type = %q, want application/x-msgpack", ct)
	}

	var entries []map[string]any
	if err := msgpack.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("msgpack decode: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("got %d entries, want 6", len(entries))
	}
	if _, ok := entries[0]["date"]; !ok {
		t.Errorf("entry keys = %v, want json tag names", entries[0])
	}
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		ctrl := newTestController(t, newTestStore(t), config.ClimateData{})
		w := serve(t, ctrl, http.MethodGet, "/healthz")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var resp HealthResponse
		decodeJSON(t, w, &resp)
		if resp.Status != "ok" {
			t.Errorf("status = %q, want ok", resp.Status)
		}
	})

	t.Run("store down", func(t *testing.T) {
		ctrl := newTestController(t, &failingStore{err: errors.New("connection refused")}, config.ClimateData{})
		w := serve(t, ctrl, http.MethodGet, "/healthz")
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
	})
}

func TestStoreFailureReturns500(t *testing.T) {
	ctrl := newTestController(t, &failingStore{err: errors.New("disk I/O error")}, config.ClimateData{})

	for _, path := range []string{
		"/api/v1.0/precipitation",
		"/api/v1.0/stations",
		"/api/v1.0/tobs",
		"/api/v1.0/2017-01-01",
		"/api/v1.0/2017-01-01/2017-02-01",
	} {
		t.Run(path, func(t *testing.T) {
			w := serve(t, ctrl, http.MethodGet, path)
			if w.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", w.Code)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ctrl := newTestController(t, newTestStore(t), config.ClimateData{})

	tests := []struct {
		method string
		target string
	}{
		{http.MethodPost, "/api/v1.0/stations"},
		{http.MethodPut, "/api/v1.0/precipitation"},
		{http.MethodDelete, "/api/v1.0/2017-01-01"},
		{http.MethodPatch, "/api/v1.0/2017-01-01/2017-02-01"},
		{http.MethodHead, "/api/v1.0/tobs"},
		{http.MethodPost, "/healthz"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := serve(t, ctrl, tt.method, tt.target)
			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("status = %d, want 405", w.Code)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	ctrl := newTestController(t, newTestStore(t), config.ClimateData{})

	tests := []struct {
		requested   string
		wantAllowed string
	}{
		{requested: http.MethodGet, wantAllowed: http.MethodGet},
		{requested: http.MethodHead, wantAllowed: ""},
		{requested: http.MethodPost, wantAllowed: ""},
	}

	for _, tt := range tests {
		t.Run(tt.requested, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1.0/stations", nil)
			req.Header.Set("Origin", "http://example.com")
			req.Header.Set("Access-Control-Request-Method", tt.requested)
			w := httptest.NewRecorder()
			ctrl.Handler().ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Methods"); got != tt.wantAllowed {
				t.Errorf("Access-Control-Allow-Methods = %q, want %q", got, tt.wantAllowed)
			}
		})
	}
}

// brokenWriter accepts headers but fails every body write
type brokenWriter struct {
	header   http.Header
	statuses []int
}

func (b *brokenWriter) Header() http.Header { return b.header }

func (b *brokenWriter) WriteHeader(status int) { b.statuses = append(b.statuses, status) }

func (b *brokenWriter) Write([]byte) (int, error) {
	if len(b.statuses) == 0 {
		b.statuses = append(b.statuses, http.StatusOK)
	}
	return 0, errors.New("connection reset by peer")
}

func TestWriteFailures(t *testing.T) {
	ctrl := newTestController(t, newTestStore(t), config.ClimateData{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1.0/stations", nil)

	t.Run("body write fails after headers", func(t *testing.T) {
		w := &brokenWriter{header: http.Header{}}
		ctrl.handlers.write(w, req, http.StatusOK, []string{"WAIKIKI 717.2, HI US"})

		if len(w.statuses) != 1 || w.statuses[0] != http.StatusOK {
			t.Errorf("WriteHeader calls = %v, want a single 200", w.statuses)
		}
		if ct := w.header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
	})

	t.Run("encoding fails before headers", func(t *testing.T) {
		w := httptest.NewRecorder()
		ctrl.handlers.write(w, req, http.StatusOK, map[string]any{"bad": math.Inf(1)})

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
		if strings.Contains(w.Body.String(), "bad") {
			t.Errorf("body = %q, want only the error page", w.Body.String())
		}
	})
}

func TestRequestIDAndCORS(t *testing.T) {
	ctrl := newTestController(t, newTestStore(t), config.ClimateData{})

	t.Run("generated", func(t *testing.T) {
		w := serve(t, ctrl, http.MethodGet, "/api/v1.0/stations")
		if w.Header().Get(requestIDHeader) == "" {
			t.Error("missing X-Request-ID response header")
		}
	})

	t.Run("propagated with origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1.0/stations", nil)
		req.Header.Set(requestIDHeader, "abc-123")
		req.Header.Set("Origin", "http://example.com")
		w := httptest.NewRecorder()
		ctrl.Handler().ServeHTTP(w, req)

		if got := w.Header().Get(requestIDHeader); got != "abc-123" {
			t.Errorf("X-Request-ID = %q, want abc-123", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
		}
	})
}

type failingStore struct {
	err error
}

func (f *failingStore) PrecipitationByDate(context.Context) ([]database.DailyPrecipitation, error) {
	return nil, f.err
}

func (f *failingStore) StationNames(context.Context) ([]string, error) {
	return nil, f.err
}

func (f *failingStore) LatestDate(context.Context) (string, error) {
	return "", f.err
}

func (f *failingStore) TemperatureObservations(context.Context, time.Time, int) ([]database.TemperatureObservation, error) {
	return nil, f.err
}

func (f *failingStore) TemperatureSummaryFrom(context.Context, string) ([]database.TemperatureSummary, error) {
	return nil, f.err
}

func (f *failingStore) TemperatureSummaryBetween(context.Context, string, string) (database.TemperatureSummary, error) {
	return database.TemperatureSummary{}, f.err
}

func (f *failingStore) Ping(context.Context) error {
	return f.err
}
