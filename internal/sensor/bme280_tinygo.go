package sensor

import (
	"fmt"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/bme280"
)

// TinyBME280 reads the weather sensor with the TinyGo bme280 driver. Any
// bus with a Tx(addr, w, r) method works, including a periph i2c.Bus.
type TinyBME280 struct {
	dev     bme280.Device
	started bool
}

func NewTinyBME280(bus drivers.I2C, addr uint16) *TinyBME280 {
	dev := bme280.New(bus)
	dev.Address = addr
	return &TinyBME280{dev: dev}
}

func (s *TinyBME280) Name() string { return "bme280" }

func (s *TinyBME280) Begin() error {
	if !s.dev.Connected() {
		return fmt.Errorf("%w: bme280 at 0x%02X", ErrNotFound, s.dev.Address)
	}
	s.dev.Configure()
	s.started = true
	return nil
}

func (s *TinyBME280) ReadWeather() (Weather, error) {
	if !s.started {
		return Weather{}, ErrNotReady
	}

	var w Weather
	var firstErr error

	// milli °C
	if t, err := s.dev.ReadTemperature(); err == nil {
		w.Temperature = Some(float64(t) / 1000)
	} else {
		firstErr = err
	}
	// milli Pa
	if p, err := s.dev.ReadPressure(); err == nil {
		w.Pressure = Some(float64(p) / 1000)
	} else if firstErr == nil {
		firstErr = err
	}
	// hundredths of %RH
	if h, err := s.dev.ReadHumidity(); err == nil {
		w.Humidity = Some(float64(h) / 100)
	} else if firstErr == nil {
		firstErr = err
	}

	if firstErr != nil {
		return w, fmt.Errorf("bme280 read: %w", firstErr)
	}
	return w, nil
}

func (s *TinyBME280) Close() error { return nil }
