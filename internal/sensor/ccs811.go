package sensor

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ccs811"
)

const ccs811DataReady = 0x08

// CCS811 reads eCO2 and TVOC through periph's ccs811 driver.
//
// periph does not expose the NTC thermistor, so the temperature reported
// with each reading is the compensation temperature last passed to
// Calibrate.
type CCS811 struct {
	bus  i2c.Bus
	addr uint16

	mu      sync.Mutex
	dev     *ccs811.Dev
	refTemp Value
}

func NewCCS811(bus i2c.Bus, addr uint16) *CCS811 {
	return &CCS811{bus: bus, addr: addr}
}

func (s *CCS811) Name() string { return "ccs811" }

func (s *CCS811) Begin() error {
	opts := ccs811.DefaultOpts
	opts.Addr = s.addr
	dev, err := ccs811.New(s.bus, &opts)
	if err != nil {
		return fmt.Errorf("%w: ccs811 at 0x%02X: %v", ErrNotFound, s.addr, err)
	}
	s.mu.Lock()
	s.dev = dev
	s.mu.Unlock()
	return nil
}

func (s *CCS811) Ready() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return false, ErrNotReady
	}
	status, err := s.dev.ReadStatus()
	if err != nil {
		return false, fmt.Errorf("ccs811 status: %w", err)
	}
	return status&ccs811DataReady != 0, nil
}

// Calibrate writes the environment compensation registers. Both values
// must be available.
func (s *CCS811) Calibrate(temperature, humidity Value) error {
	t, tok := temperature.Get()
	h, hok := humidity.Get()
	if !tok || !hok {
		return fmt.Errorf("ccs811 calibrate: reference reading unavailable")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return ErrNotReady
	}
	if err := s.dev.SetEnvironmentData(float32(t), float32(h)); err != nil {
		return fmt.Errorf("ccs811 calibrate: %w", err)
	}
	s.refTemp = temperature
	return nil
}

func (s *CCS811) ReadAirQuality() (AirQuality, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return AirQuality{}, ErrNotReady
	}

	var v ccs811.SensorValues
	if err := s.dev.Sense(&v); err != nil {
		return AirQuality{}, fmt.Errorf("ccs811 sense: %w", err)
	}
	return AirQuality{
		Temperature: s.refTemp,
		ECO2:        Some(float64(v.ECO2)),
		TVOC:        Some(float64(v.VOC)),
	}, nil
}

func (s *CCS811) Close() error { return nil }
