package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/wilot/weather-station/internal/record"
)

//go:embed queries/insert-sample.sql
var insertSampleSQL string

//go:embed queries/latest-samples.sql
var latestSamplesSQL string

//go:embed queries/count-samples.sql
var countSamplesSQL string

//go:embed queries/setup-test-table.sql
var setupTestTableSQL string

//go:embed queries/insert-test-sample.sql
var insertTestSampleSQL string

//go:embed queries/test-samples.sql
var testSamplesSQL string

// Sample is one stored row. Temperatures are tenths of a degree, humidities
// hundredths of a percent and pressure whole Pascals, all truncated toward
// zero and saturated to the 32-bit range. NaN is stored as 0.
type Sample struct {
	MeasurementTime int64
	ReceivedTime    int64

	TemperatureBME int64
	PressureBME    int64
	HumidityBME    int64

	TemperatureCCS811 int64
	ECO2CCS811        int64
	TVOCCCS811        int64

	TemperatureDHT22 int64
	HumidityDHT22    int64
}

// FromRecord scales a decoded record into a row. Bare records carry no
// timestamp, so the received time stands in for the measurement time.
func FromRecord(rec record.Record, layout record.Layout, received time.Time) Sample {
	measured := rec.Timestamp
	if layout == record.LayoutBare {
		measured = received.Unix()
	}
	return Sample{
		MeasurementTime: measured,
		ReceivedTime:    received.Unix(),

		TemperatureBME: scaled(rec.WeatherTemperature, 10),
		PressureBME:    scaled(rec.WeatherPressure, 1),
		HumidityBME:    scaled(rec.WeatherHumidity, 100),

		TemperatureCCS811: scaled(rec.AirTemperature, 10),
		ECO2CCS811:        int64(rec.AirECO2),
		TVOCCCS811:        int64(rec.AirTVOC),

		TemperatureDHT22: scaled(rec.HumidityTemperature, 10),
		HumidityDHT22:    scaled(rec.HumidityHumidity, 100),
	}
}

func scaled(v, factor float32) int64 {
	f := float64(v * factor)
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int64(f)
}

// testSample is the fixed row written by SetupTest.
func testSample(received time.Time) Sample {
	return FromRecord(record.Record{
		Timestamp:           1742069972,
		WeatherTemperature:  100,
		WeatherPressure:     101325,
		WeatherHumidity:     20,
		AirTemperature:      90,
		AirECO2:             450,
		AirTVOC:             25,
		HumidityTemperature: 95,
		HumidityHumidity:    20,
	}, record.LayoutFull, received)
}

func (s Sample) args() []any {
	return []any{
		s.MeasurementTime, s.ReceivedTime,
		s.TemperatureBME, s.PressureBME, s.HumidityBME,
		s.TemperatureCCS811, s.ECO2CCS811, s.TVOCCCS811,
		s.TemperatureDHT22, s.HumidityDHT22,
	}
}

func (s Sample) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("measurement_time", s.MeasurementTime),
		slog.Int64("received_time", s.ReceivedTime),
		slog.Int64("temperature_bme", s.TemperatureBME),
		slog.Int64("pressure_bme", s.PressureBME),
		slog.Int64("humidity_bme", s.HumidityBME),
		slog.Int64("temperature_ccs811", s.TemperatureCCS811),
		slog.Int64("eco2_ccs811", s.ECO2CCS811),
		slog.Int64("tvoc_ccs811", s.TVOCCCS811),
		slog.Int64("temperature_dht22", s.TemperatureDHT22),
		slog.Int64("humidity_dht22", s.HumidityDHT22),
	)
}

type SampleRepository interface {
	InsertSample(ctx context.Context, s Sample) error
	LatestSamples(ctx context.Context, limit int) ([]Sample, error)
	CountSamples(ctx context.Context) (int, error)
	// SetupTest recreates the test table, writes one fixed row into it and
	// returns the table's contents.
	SetupTest(ctx context.Context, received time.Time) ([]Sample, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) SampleRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertSample(ctx context.Context, s Sample) error {
	if _, err := r.db.ExecContext(ctx, insertSampleSQL, s.args()...); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

func (r *repositoryImpl) LatestSamples(ctx context.Context, limit int) ([]Sample, error) {
	rows, err := r.db.QueryContext(ctx, latestSamplesSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close latest samples rows", "error", err)
		}
	}()
	return scanSamples(rows)
}

func (r *repositoryImpl) CountSamples(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countSamplesSQL).Scan(&n)
	return n, err
}

func (r *repositoryImpl) SetupTest(ctx context.Context, received time.Time) ([]Sample, error) {
	if _, err := r.db.ExecContext(ctx, setupTestTableSQL); err != nil {
		return nil, fmt.Errorf("create test table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, insertTestSampleSQL, testSample(received).args()...); err != nil {
		return nil, fmt.Errorf("insert test sample: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, testSamplesSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close test samples rows", "error", err)
		}
	}()
	return scanSamples(rows)
}

func scanSamples(rows *sql.Rows) ([]Sample, error) {
	var out []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(
			&s.MeasurementTime, &s.ReceivedTime,
			&s.TemperatureBME, &s.PressureBME, &s.HumidityBME,
			&s.TemperatureCCS811, &s.ECO2CCS811, &s.TVOCCCS811,
			&s.TemperatureDHT22, &s.HumidityDHT22,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
