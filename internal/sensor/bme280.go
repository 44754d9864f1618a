package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

// BME280 reads the weather sensor through periph's bmxx80 driver in forced
// mode: 1x oversampling on every channel, filter off.
type BME280 struct {
	bus  i2c.Bus
	addr uint16
	dev  *bmxx80.Dev
}

func NewBME280(bus i2c.Bus, addr uint16) *BME280 {
	return &BME280{bus: bus, addr: addr}
}

func (s *BME280) Name() string { return "bme280" }

func (s *BME280) Begin() error {
	dev, err := bmxx80.NewI2C(s.bus, s.addr, &bmxx80.Opts{
		Temperature: bmxx80.O1x,
		Pressure:    bmxx80.O1x,
		Humidity:    bmxx80.O1x,
		Filter:      bmxx80.NoFilter,
	})
	if err != nil {
		return fmt.Errorf("%w: bme280 at 0x%02X: %v", ErrNotFound, s.addr, err)
	}
	s.dev = dev
	return nil
}

// ReadWeather triggers one forced measurement.
func (s *BME280) ReadWeather() (Weather, error) {
	if s.dev == nil {
		return Weather{}, ErrNotReady
	}
	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		return Weather{}, fmt.Errorf("bme280 sense: %w", err)
	}

	// env.Pressure is stored in nano Pascal, env.Humidity in 1e-5 %rH.
	return Weather{
		Temperature: Some(env.Temperature.Celsius()),
		Pressure:    Some(float64(env.Pressure) / float64(physic.Pascal)),
		Humidity:    Some(float64(env.Humidity) / float64(physic.PercentRH)),
	}, nil
}

func (s *BME280) Close() error {
	if s.dev == nil {
		return nil
	}
	return s.dev.Halt()
}
