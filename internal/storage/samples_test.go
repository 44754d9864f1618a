package storage

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wilot/weather-station/internal/record"
	"github.com/wilot/weather-station/internal/storage/migrate"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	if _, err := migrate.Run(context.Background(), db, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestFromRecord_ScalesAndTruncates(t *testing.T) {
	rec := record.Record{
		Timestamp:           1742069972,
		WeatherTemperature:  -1.25,
		WeatherPressure:     101325.75,
		WeatherHumidity:     45.5,
		AirTemperature:      22,
		AirECO2:             410,
		AirTVOC:             12,
		HumidityTemperature: 19.75,
		HumidityHumidity:    44.25,
	}
	received := time.Unix(1742070000, 0)

	got := FromRecord(rec, record.LayoutFull, received)
	want := Sample{
		MeasurementTime:   1742069972,
		ReceivedTime:      1742070000,
		TemperatureBME:    -12,
		PressureBME:       101325,
		HumidityBME:       4550,
		TemperatureCCS811: 220,
		ECO2CCS811:        410,
		TVOCCCS811:        12,
		TemperatureDHT22:  197,
		HumidityDHT22:     4425,
	}
	if got != want {
		t.Fatalf("FromRecord:\n got  %+v\n want %+v", got, want)
	}
}

func TestFromRecord_BareUsesReceivedTime(t *testing.T) {
	received := time.Unix(1742070000, 0)
	got := FromRecord(record.Record{WeatherTemperature: 20}, record.LayoutBare, received)
	if got.MeasurementTime != received.Unix() {
		t.Errorf("MeasurementTime = %d, want %d", got.MeasurementTime, received.Unix())
	}
}

func TestFromRecord_NonFinite(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	rec := record.Record{
		Timestamp:           1742069972,
		WeatherTemperature:  nan,
		WeatherPressure:     inf,
		WeatherHumidity:     -inf,
		AirTemperature:      3e9,
		HumidityTemperature: -3e9,
		HumidityHumidity:    nan,
	}

	got := FromRecord(rec, record.LayoutFull, time.Unix(1742070000, 0))
	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"nan temperature", got.TemperatureBME, 0},
		{"+inf pressure", got.PressureBME, math.MaxInt32},
		{"-inf humidity", got.HumidityBME, math.MinInt32},
		{"large temperature", got.TemperatureCCS811, math.MaxInt32},
		{"large negative temperature", got.TemperatureDHT22, math.MinInt32},
		{"nan humidity", got.HumidityDHT22, 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestInsertAndLatestSamples(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		s := Sample{MeasurementTime: 1000 + i*10, ReceivedTime: 1001 + i*10, TemperatureBME: 200 + i}
		if err := repo.InsertSample(ctx, s); err != nil {
			t.Fatalf("InsertSample %d: %v", i, err)
		}
	}

	n, err := repo.CountSamples(ctx)
	if err != nil {
		t.Fatalf("CountSamples: %v", err)
	}
	if n != 5 {
		t.Fatalf("CountSamples = %d, want 5", n)
	}

	latest, err := repo.LatestSamples(ctx, 2)
	if err != nil {
		t.Fatalf("LatestSamples: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("LatestSamples: got %d rows, want 2", len(latest))
	}
	if latest[0].MeasurementTime != 1040 || latest[1].MeasurementTime != 1030 {
		t.Errorf("order = %d, %d; want newest first", latest[0].MeasurementTime, latest[1].MeasurementTime)
	}
	if latest[0].TemperatureBME != 204 {
		t.Errorf("TemperatureBME = %d, want 204", latest[0].TemperatureBME)
	}
}

func TestLatestSamples_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	latest, err := repo.LatestSamples(context.Background(), 10)
	if err != nil {
		t.Fatalf("LatestSamples: %v", err)
	}
	if len(latest) != 0 {
		t.Fatalf("got %d rows, want 0", len(latest))
	}
}

func TestInsertSample_NoTable(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := NewRepository(db).InsertSample(context.Background(), Sample{}); err == nil {
		t.Fatal("expected error without weather_data table")
	}
}

func TestSetupTest_RecreatesTable(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	received := time.Unix(1742070000, 0)

	if _, err := repo.SetupTest(ctx, received); err != nil {
		t.Fatalf("first SetupTest: %v", err)
	}
	rows, err := repo.SetupTest(ctx, received)
	if err != nil {
		t.Fatalf("second SetupTest: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 after recreate", len(rows))
	}
	want := Sample{
		MeasurementTime:   1742069972,
		ReceivedTime:      1742070000,
		TemperatureBME:    1000,
		PressureBME:       101325,
		HumidityBME:       2000,
		TemperatureCCS811: 900,
		ECO2CCS811:        450,
		TVOCCCS811:        25,
		TemperatureDHT22:  950,
		HumidityDHT22:     2000,
	}
	if rows[0] != want {
		t.Errorf("test row:\n got  %+v\n want %+v", rows[0], want)
	}

	n, err := repo.CountSamples(ctx)
	if err != nil {
		t.Fatalf("CountSamples: %v", err)
	}
	if n != 0 {
		t.Errorf("weather_data touched by SetupTest: %d rows", n)
	}
}

func TestOpen_DebugUsesLoggingConnector(t *testing.T) {
	h := &captureHandler{}
	cfg := testConfig(slog.LevelDebug)

	db, err := Open(cfg, slog.New(h))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = Close(db) }()

	if _, err := db.Exec(`CREATE TABLE x (v INTEGER)`); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if got := h.last(t); got["sql"].String() != `CREATE TABLE x (v INTEGER)` {
		t.Errorf("sql = %q", got["sql"].String())
	}
}

func TestOpen_InfoDoesNotLogSQL(t *testing.T) {
	h := &captureHandler{}
	db, err := Open(testConfig(slog.LevelInfo), slog.New(h))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = Close(db) }()

	if _, err := db.Exec(`CREATE TABLE x (v INTEGER)`); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if len(h.records) != 0 {
		t.Errorf("expected no sql logs at info, got %d", len(h.records))
	}
}
