package station

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/wilot/weather-station/internal/link"
	"github.com/wilot/weather-station/internal/sensor"
)

const readyPoll = 250 * time.Millisecond

// Bootstrap runs once before sampling starts: time sync, network, broker,
// PRNG seed, sensors. Network and broker waits that time out are logged and
// the station carries on; the cycle reconnects the broker later. A missing
// weather sensor is fatal and returns ErrWeatherSensorMissing.
func (s *Station) Bootstrap(ctx context.Context) error {
	started := s.monotonic()
	s.logger.Info("bootstrap starting",
		"topic", s.topic,
		"period", s.period,
		"layout", s.schema.Layout().String(),
		"record_bytes", s.schema.Size(),
	)

	if s.clock != nil {
		s.clock.OnSync(func(now time.Time) {
			s.logger.Info("time synchronised", "now", now.Format(time.RFC1123))
		})
		s.clock.Start(ctx)
	}

	if s.network != nil {
		if err := s.await(ctx, "network", s.network.Await); err != nil {
			return err
		}
	}
	if err := s.await(ctx, "broker", s.broker.Await); err != nil {
		return err
	}

	s.seedRand(started)

	return s.initSensors(ctx)
}

func (s *Station) await(ctx context.Context, what string, fn func(context.Context, time.Duration) error) error {
	err := fn(ctx, s.bootstrapTimeout)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, link.ErrTimeout):
		s.logger.Warn(what+" not connected, continuing", "timeout", s.bootstrapTimeout)
		return nil
	default:
		return fmt.Errorf("bootstrap %s: %w", what, err)
	}
}

// seedRand mixes the time taken to get online into the wall clock.
func (s *Station) seedRand(started time.Time) {
	elapsed := uint64(s.monotonic().Sub(started))
	s.seed = uint64(time.Now().UnixNano()) ^ (elapsed << 17)
	s.rng = rand.New(rand.NewPCG(s.seed, elapsed))
	s.logger.Debug("prng seeded", "seed", s.seed)
}

func (s *Station) initSensors(ctx context.Context) error {
	if err := s.weather.Begin(); err != nil {
		s.logger.Error("weather sensor missing", "sensor", s.weather.Name(), "error", err)
		return fmt.Errorf("%w: %v", ErrWeatherSensorMissing, err)
	}
	s.logger.Info("sensor ready", "sensor", s.weather.Name())

	if s.humidity != nil {
		if err := s.humidity.Begin(); err != nil {
			s.logger.Warn("humidity sensor missing, continuing without it", "sensor", s.humidity.Name(), "error", err)
		} else {
			s.humidityUp = true
			s.logger.Info("sensor ready", "sensor", s.humidity.Name())
		}
	}

	if s.air == nil {
		return nil
	}
	if err := s.air.Begin(); err != nil {
		s.logger.Warn("air-quality sensor missing, continuing without it", "sensor", s.air.Name(), "error", err)
		return nil
	}
	s.airUp = true

	if err := s.waitAirReady(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("air-quality sensor not ready", "sensor", s.air.Name(), "error", err)
	} else {
		s.logger.Info("sensor ready", "sensor", s.air.Name())
	}

	t, h, from := s.reference()
	if err := s.air.Calibrate(t, h); err != nil {
		s.logger.Warn("air-quality calibration skipped", "error", err)
	} else {
		s.logger.Info("air-quality sensor calibrated", "reference", from, "temperature", t, "humidity", h)
	}
	return nil
}

func (s *Station) waitAirReady(ctx context.Context) error {
	deadline := s.monotonic().Add(s.readyTimeout)
	for {
		ok, err := s.air.Ready()
		if err == nil && ok {
			return nil
		}
		if !s.monotonic().Before(deadline) {
			if err != nil {
				return err
			}
			return fmt.Errorf("no measurement after %s", s.readyTimeout)
		}
		if err := s.sleep(ctx, readyPoll); err != nil {
			return err
		}
	}
}

// reference picks the calibration source: the humidity sensor, or the
// weather sensor when that is unavailable.
func (s *Station) reference() (t, h sensor.Value, from string) {
	if s.humidityUp {
		if r, err := s.humidity.ReadHumidity(); err == nil && r.Temperature.OK() && r.Humidity.OK() {
			return r.Temperature, r.Humidity, s.humidity.Name()
		}
	}
	w, _ := s.weather.ReadWeather()
	return w.Temperature, w.Humidity, s.weather.Name()
}
