package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wilot/weather-station/internal/ingest"
	"github.com/wilot/weather-station/internal/storage"
	"github.com/wilot/weather-station/internal/storage/migrate"
)

type fakeBroker struct{ up bool }

func (f fakeBroker) IsConnected() bool { return f.up }

type fakeStats struct{ s ingest.Stats }

func (f fakeStats) Stats() ingest.Stats { return f.s }

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if _, err := migrate.Run(context.Background(), db, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestServer(t *testing.T, db *sql.DB, broker BrokerStatus, stats StatsSource) *httptest.Server {
	t.Helper()
	srv := NewServer(":0", NewMux(db, broker, stats), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func mustGetJSON[T any](t *testing.T, client *http.Client, url string, out *T) *http.Response {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, setupTestDB(t), fakeBroker{up: true}, fakeStats{ingest.Stats{Received: 3, Stored: 2, Rejected: 1}})

	var body healthResponse
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	if body.Status != "ok" || body.MQTT != "connected" {
		t.Fatalf("body=%+v", body)
	}
	if body.Ingest == nil || body.Ingest.Stored != 2 || body.Ingest.Rejected != 1 {
		t.Fatalf("ingest=%+v", body.Ingest)
	}
}

func TestHealthz_BrokerDownStillOK(t *testing.T) {
	ts := newTestServer(t, setupTestDB(t), fakeBroker{}, nil)

	var body healthResponse
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	if body.MQTT != "disconnected" {
		t.Fatalf("mqtt=%q want=disconnected", body.MQTT)
	}
	if body.Ingest != nil {
		t.Fatalf("ingest=%+v want=nil", body.Ingest)
	}
}

func TestHealthz_DatabaseClosed(t *testing.T) {
	db := setupTestDB(t)
	ts := newTestServer(t, db, nil, nil)
	_ = db.Close()

	var body map[string]any
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusInternalServerError)
	}
}

func TestLatestSamples(t *testing.T) {
	db := setupTestDB(t)
	repo := storage.NewRepository(db)
	ctx := context.Background()
	for i := int64(0); i < 3; i++ {
		if err := repo.InsertSample(ctx, storage.Sample{
			MeasurementTime:   1742069972 + i*10,
			ReceivedTime:      1742069973 + i*10,
			TemperatureBME:    215,
			PressureBME:       101325,
			HumidityBME:       4500,
			TemperatureCCS811: 220,
			ECO2CCS811:        410,
			TVOCCCS811:        12,
			TemperatureDHT22:  213,
			HumidityDHT22:     4400,
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	ts := newTestServer(t, db, nil, nil)

	var got []SampleView
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/samples/latest?limit=2", &got)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d want=2", len(got))
	}
	first := got[0]
	if first.MeasurementTime.Unix() != 1742069992 {
		t.Errorf("measurementTime=%v want newest", first.MeasurementTime)
	}
	if first.BME280.TemperatureC != 21.5 || first.BME280.PressurePa != 101325 || first.BME280.HumidityPct != 45 {
		t.Errorf("bme280=%+v", first.BME280)
	}
	if first.CCS811.ECO2ppm != 410 || first.CCS811.TVOCppb != 12 || first.CCS811.TemperatureC != 22 {
		t.Errorf("ccs811=%+v", first.CCS811)
	}
	if first.DHT22.TemperatureC != 21.3 || first.DHT22.HumidityPct != 44 {
		t.Errorf("dht22=%+v", first.DHT22)
	}
}

func TestLatestSamples_EmptyIsArray(t *testing.T) {
	ts := newTestServer(t, setupTestDB(t), nil, nil)

	var got []SampleView
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/samples/latest", &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("got=%v want empty array", got)
	}
}

func TestLatestSamples_InvalidLimit(t *testing.T) {
	ts := newTestServer(t, setupTestDB(t), nil, nil)

	for _, q := range []string{"abc", "0", "-1", "1001"} {
		t.Run(q, func(t *testing.T) {
			var body map[string]any
			resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/samples/latest?limit="+q, &body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusBadRequest)
			}
			if _, ok := body["message"]; !ok {
				t.Fatalf("expected message field, got %v", body)
			}
		})
	}
}

func TestParseLatestQuery_Default(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/samples/latest", nil)
	limit, err := parseLatestQuery(r)
	if err != nil || limit != defaultLatestLimit {
		t.Fatalf("limit=%d err=%v", limit, err)
	}
}

func TestRouting_WrongMethod(t *testing.T) {
	ts := newTestServer(t, setupTestDB(t), nil, nil)

	resp, err := ts.Client().Post(ts.URL+"/healthz", "text/plain", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

type logCapture struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *logCapture) Enabled(context.Context, slog.Level) bool { return true }
func (h *logCapture) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.records = append(h.records, r.Clone())
	h.mu.Unlock()
	return nil
}
func (h *logCapture) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *logCapture) WithGroup(string) slog.Handler      { return h }

func TestRequestLogger_RecordsStatus(t *testing.T) {
	h := &logCapture{}
	handler := requestLogger(slog.New(h), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	if len(h.records) != 1 {
		t.Fatalf("got %d log records, want 1", len(h.records))
	}
	attrs := map[string]slog.Value{}
	h.records[0].Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value
		return true
	})
	if attrs["status"].Int64() != http.StatusTeapot || attrs["path"].String() != "/brew" {
		t.Errorf("attrs=%v", attrs)
	}
}
