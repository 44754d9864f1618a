package sensor

import (
	"fmt"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/shtc3"
)

// SHTC3 is an I2C alternative to the DHT22 for the humidity slot.
type SHTC3 struct {
	dev     shtc3.Device
	started bool
}

func NewSHTC3(bus drivers.I2C) *SHTC3 {
	return &SHTC3{dev: shtc3.New(bus)}
}

func (s *SHTC3) Name() string { return "shtc3" }

func (s *SHTC3) Begin() error {
	if err := s.dev.WakeUp(); err != nil {
		return fmt.Errorf("%w: shtc3: %v", ErrNotFound, err)
	}
	s.started = true
	return s.dev.Sleep()
}

func (s *SHTC3) ReadHumidity() (Humidity, error) {
	if !s.started {
		return Humidity{}, ErrNotReady
	}
	if err := s.dev.WakeUp(); err != nil {
		return Humidity{}, fmt.Errorf("shtc3 wake: %w", err)
	}
	defer s.dev.Sleep()

	t, h, err := s.dev.ReadTemperatureHumidity()
	if err != nil {
		return Humidity{}, fmt.Errorf("shtc3 read: %w", err)
	}
	return Humidity{
		Temperature: Some(float64(t) / 1000),
		Humidity:    Some(float64(h) / 100),
	}, nil
}

func (s *SHTC3) Close() error { return nil }
