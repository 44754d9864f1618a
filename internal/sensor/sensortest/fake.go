// Package sensortest provides scripted sensors for tests.
package sensortest

import (
	"sync"

	"github.com/wilot/weather-station/internal/sensor"
)

// Weather is a fake weather sensor. Readings are returned in order; the
// last one repeats once the script runs out.
type Weather struct {
	BeginErr error
	Readings []sensor.Weather

	mu    sync.Mutex
	calls int
}

func (w *Weather) Name() string { return "fake-weather" }
func (w *Weather) Begin() error { return w.BeginErr }
func (w *Weather) Close() error { return nil }

func (w *Weather) ReadWeather() (sensor.Weather, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.Readings) == 0 {
		return sensor.Weather{}, nil
	}
	r := w.Readings[min(w.calls, len(w.Readings)-1)]
	w.calls++
	return r, nil
}

// Air is a fake air-quality sensor.
type Air struct {
	BeginErr error
	// NotReadyFor makes Ready return false this many times first.
	NotReadyFor int
	Readings    []sensor.AirQuality

	mu           sync.Mutex
	readyCalls   int
	calls        int
	Calibrations [][2]sensor.Value
}

func (a *Air) Name() string { return "fake-air" }
func (a *Air) Begin() error { return a.BeginErr }
func (a *Air) Close() error { return nil }

func (a *Air) Ready() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readyCalls++
	return a.readyCalls > a.NotReadyFor, nil
}

func (a *Air) Calibrate(temperature, humidity sensor.Value) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calibrations = append(a.Calibrations, [2]sensor.Value{temperature, humidity})
	return nil
}

func (a *Air) ReadAirQuality() (sensor.AirQuality, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.Readings) == 0 {
		return sensor.AirQuality{}, nil
	}
	r := a.Readings[min(a.calls, len(a.Readings)-1)]
	a.calls++
	return r, nil
}

// ReadyCalls reports how many times Ready was polled.
func (a *Air) ReadyCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readyCalls
}

// Humidity is a fake humidity sensor.
type Humidity struct {
	BeginErr error
	Readings []sensor.Humidity

	mu    sync.Mutex
	calls int
}

func (h *Humidity) Name() string { return "fake-humidity" }
func (h *Humidity) Begin() error { return h.BeginErr }
func (h *Humidity) Close() error { return nil }

func (h *Humidity) ReadHumidity() (sensor.Humidity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Readings) == 0 {
		return sensor.Humidity{}, nil
	}
	r := h.Readings[min(h.calls, len(h.Readings)-1)]
	h.calls++
	return r, nil
}

// Fixed returns sensors that always report the reference values used
// across the station tests.
func Fixed() (*Weather, *Air, *Humidity) {
	return &Weather{Readings: []sensor.Weather{{
			Temperature: sensor.Some(21.5),
			Pressure:    sensor.Some(101325),
			Humidity:    sensor.Some(45),
		}}},
		&Air{Readings: []sensor.AirQuality{{
			Temperature: sensor.Some(22),
			ECO2:        sensor.Some(410),
			TVOC:        sensor.Some(12),
		}}},
		&Humidity{Readings: []sensor.Humidity{{
			Temperature: sensor.Some(21.3),
			Humidity:    sensor.Some(44),
		}}}
}
