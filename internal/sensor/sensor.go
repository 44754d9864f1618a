// Package sensor wraps the station's three sensors behind small interfaces.
//
// Drivers never report NaN: a reading that could not be taken is a Value
// without a number (see None).
package sensor

import (
	"errors"
	"log/slog"
	"math"
)

var (
	ErrNotFound = errors.New("sensor: device not found")
	ErrNotReady = errors.New("sensor: device not started")
)

// Value is one reading that may be unavailable.
type Value struct {
	v  float64
	ok bool
}

// Some returns an available Value. NaN and ±Inf are treated as unavailable.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{v: v, ok: true}
}

// None returns an unavailable Value.
func None() Value { return Value{} }

func (v Value) Get() (float64, bool) { return v.v, v.ok }

func (v Value) OK() bool { return v.ok }

// Or returns the reading, or def when unavailable.
func (v Value) Or(def float64) float64 {
	if !v.ok {
		return def
	}
	return v.v
}

func (v Value) LogValue() slog.Value {
	if !v.ok {
		return slog.StringValue("unavailable")
	}
	return slog.Float64Value(v.v)
}

// Weather is a reading from the primary weather sensor.
type Weather struct {
	Temperature Value // °C
	Pressure    Value // Pa
	Humidity    Value // %RH
}

// AirQuality is a reading from the air-quality sensor.
type AirQuality struct {
	Temperature Value // °C
	ECO2        Value // ppm
	TVOC        Value // ppb
}

// Humidity is a reading from the secondary humidity sensor.
type Humidity struct {
	Temperature Value // °C
	Humidity    Value // %RH
}

// Device is the lifecycle shared by all sensors. Begin probes the device and
// returns ErrNotFound (possibly wrapped) when it does not answer.
type Device interface {
	Name() string
	Begin() error
	Close() error
}

type WeatherSensor interface {
	Device
	ReadWeather() (Weather, error)
}

type AirQualitySensor interface {
	Device
	// Ready reports whether the sensor has a measurement available.
	Ready() (bool, error)
	// Calibrate feeds the sensor a reference temperature and humidity taken
	// from another sensor.
	Calibrate(temperature, humidity Value) error
	ReadAirQuality() (AirQuality, error)
}

type HumiditySensor interface {
	Device
	ReadHumidity() (Humidity, error)
}
