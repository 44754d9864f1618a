package sensor

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"

	"github.com/wilot/weather-station/internal/config"
)

// Set is the station's sensor complement. Humidity is nil when the
// configuration disables the secondary humidity sensor.
type Set struct {
	Weather  WeatherSensor
	Air      AirQualitySensor
	Humidity HumiditySensor

	bus i2c.BusCloser
}

// Open opens the I2C bus and constructs the drivers selected by cfg.
// Devices are not probed; call Begin on each.
func Open(cfg config.Config) (*Set, error) {
	switch cfg.HumidityDriver {
	case "iio", "shtc3", "none":
	default:
		return nil, fmt.Errorf("unknown humidity driver %q", cfg.HumidityDriver)
	}

	bus, err := OpenI2C(cfg.I2CBus)
	if err != nil {
		return nil, err
	}

	s := &Set{bus: bus}

	switch cfg.BME280Driver {
	case "tinygo":
		s.Weather = NewTinyBME280(bus, cfg.BME280Address)
	default:
		s.Weather = NewBME280(bus, cfg.BME280Address)
	}

	s.Air = NewCCS811(bus, cfg.CCS811Address)

	switch cfg.HumidityDriver {
	case "iio":
		s.Humidity = NewIIOHumidity(cfg.HumidityIIODevice)
	case "shtc3":
		s.Humidity = NewSHTC3(bus)
	}

	return s, nil
}

// Close halts every device and releases the bus.
func (s *Set) Close() error {
	var errs []error
	for _, d := range []Device{s.Weather, s.Air, s.Humidity} {
		if d == nil {
			continue
		}
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		}
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("i2c bus: %w", err))
		}
	}
	return errors.Join(errs...)
}
