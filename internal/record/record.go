// Package record defines the Sample Record published by the station and the
// explicit wire schema used to encode and decode it.
package record

import (
	"log/slog"
	"time"
)

// Magic identifies the full layout on the wire.
const Magic uint32 = 0x12345678

// FieldID names a Sample Record field in wire order.
type FieldID uint8

const (
	FieldMagic FieldID = iota
	FieldTimestamp
	FieldWeatherTemperature
	FieldWeatherPressure
	FieldWeatherHumidity
	FieldAirTemperature
	FieldAirECO2
	FieldAirTVOC
	FieldHumidityTemperature
	FieldHumidityHumidity

	fieldCount
)

var fieldNames = [fieldCount]string{
	FieldMagic:               "magic",
	FieldTimestamp:           "posix_time",
	FieldWeatherTemperature:  "bme_temperature",
	FieldWeatherPressure:     "bme_pressure",
	FieldWeatherHumidity:     "bme_humidity",
	FieldAirTemperature:      "ccs811_temperature",
	FieldAirECO2:             "ccs811_eco2",
	FieldAirTVOC:             "ccs811_tvoc",
	FieldHumidityTemperature: "dht22_temperature",
	FieldHumidityHumidity:    "dht22_humidity",
}

func (f FieldID) String() string {
	if f < fieldCount {
		return fieldNames[f]
	}
	return "unknown"
}

// Mask is a set of FieldIDs.
type Mask uint16

func (m Mask) Has(f FieldID) bool { return m&(1<<f) != 0 }

func (m *Mask) Set(f FieldID) { *m |= 1 << f }

// SensorFields lists the fields filled from sensor reads.
var SensorFields = []FieldID{
	FieldWeatherTemperature,
	FieldWeatherPressure,
	FieldWeatherHumidity,
	FieldAirTemperature,
	FieldAirECO2,
	FieldAirTVOC,
	FieldHumidityTemperature,
	FieldHumidityHumidity,
}

// Record is one sampling cycle's worth of readings.
//
// Float fields are never NaN. Available tells which sensor fields were read
// successfully in the cycle that produced the record; it is not encoded.
type Record struct {
	Timestamp int64

	WeatherTemperature float32 // °C
	WeatherPressure    float32 // Pa
	WeatherHumidity    float32 // %RH

	AirTemperature float32 // °C
	AirECO2        uint16  // ppm
	AirTVOC        uint16  // ppb

	HumidityTemperature float32 // °C
	HumidityHumidity    float32 // %RH

	Available Mask
}

// Time returns the record timestamp as a time.Time in UTC.
func (r Record) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

func (r Record) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("posix_time", r.Timestamp),
		slog.Float64("bme_temperature_c", float64(r.WeatherTemperature)),
		slog.Float64("bme_pressure_pa", float64(r.WeatherPressure)),
		slog.Float64("bme_humidity_pct", float64(r.WeatherHumidity)),
		slog.Float64("ccs811_temperature_c", float64(r.AirTemperature)),
		slog.Int("ccs811_eco2_ppm", int(r.AirECO2)),
		slog.Int("ccs811_tvoc_ppb", int(r.AirTVOC)),
		slog.Float64("dht22_temperature_c", float64(r.HumidityTemperature)),
		slog.Float64("dht22_humidity_pct", float64(r.HumidityHumidity)),
	)
}
