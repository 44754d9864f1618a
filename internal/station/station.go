// Package station is the sampling loop: it owns the sensors, the broker
// transport, the status indicator and the clock, and turns one set of
// readings into one published Sample Record per period.
package station

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/wilot/weather-station/internal/indicator"
	"github.com/wilot/weather-station/internal/link"
	"github.com/wilot/weather-station/internal/mqtt"
	"github.com/wilot/weather-station/internal/record"
	"github.com/wilot/weather-station/internal/sensor"
)

var ErrWeatherSensorMissing = errors.New("station: weather sensor not found")

// Transport is the broker connection.
type Transport interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Publish(topic string, payload []byte) error
	Loop() bool
	State() mqtt.State
}

// TimeSource is the synchronised wall clock.
type TimeSource interface {
	Now() time.Time
	OnSync(fn func(now time.Time))
	Start(ctx context.Context)
}

// Network brings up the network link during bootstrap.
type Network interface {
	Await(ctx context.Context, timeout time.Duration) error
}

type Options struct {
	Weather  sensor.WeatherSensor
	Air      sensor.AirQualitySensor
	Humidity sensor.HumiditySensor // optional

	Transport Transport
	Network   Network // optional
	Indicator indicator.Indicator
	Clock     TimeSource

	Schema record.Schema
	Topic  string
	Period time.Duration

	// BootstrapTimeout bounds each bootstrap wait. Zero waits indefinitely.
	BootstrapTimeout time.Duration
	// ReadyTimeout bounds the wait for the air-quality sensor's first
	// measurement. Defaults to 10s.
	ReadyTimeout time.Duration
	// LinkOptions tunes the broker link. Backoff and PollInterval are used.
	LinkOptions link.Options

	Logger *slog.Logger

	// Monotonic and Sleep replace time.Now and a context-aware sleep.
	Monotonic func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

type Station struct {
	weather  sensor.WeatherSensor
	air      sensor.AirQualitySensor
	humidity sensor.HumiditySensor

	transport Transport
	broker    *link.Link
	network   Network
	indicator indicator.Indicator
	clock     TimeSource

	schema record.Schema
	topic  string
	period time.Duration

	bootstrapTimeout time.Duration
	readyTimeout     time.Duration

	logger    *slog.Logger
	monotonic func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	airUp      bool
	humidityUp bool

	// last holds the most recent good value of every field.
	last record.Record
	rng  *rand.Rand
	seed uint64
}

func New(opts Options) *Station {
	s := &Station{
		weather:          opts.Weather,
		air:              opts.Air,
		humidity:         opts.Humidity,
		transport:        opts.Transport,
		network:          opts.Network,
		indicator:        opts.Indicator,
		clock:            opts.Clock,
		schema:           opts.Schema,
		topic:            opts.Topic,
		period:           opts.Period,
		bootstrapTimeout: opts.BootstrapTimeout,
		readyTimeout:     opts.ReadyTimeout,
		logger:           opts.Logger,
		monotonic:        opts.Monotonic,
		sleep:            opts.Sleep,
	}
	if s.period <= 0 {
		s.period = 10 * time.Second
	}
	if s.readyTimeout <= 0 {
		s.readyTimeout = 10 * time.Second
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.monotonic == nil {
		s.monotonic = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepCtx
	}
	if s.indicator == nil {
		s.indicator = indicator.NewLog(s.logger)
	}
	if s.schema.Size() == 0 {
		s.schema = record.Full
	}

	lo := opts.LinkOptions
	lo.Now = s.monotonic
	s.broker = link.New("mqtt", link.EndpointFuncs{
		DialFunc:      s.transport.Connect,
		ConnectedFunc: s.transport.IsConnected,
	}, lo, s.logger)

	return s
}

// Seed is the PRNG seed drawn during bootstrap.
func (s *Station) Seed() uint64 { return s.seed }

// Rand is the PRNG seeded during bootstrap. It is nil before Bootstrap.
func (s *Station) Rand() *rand.Rand { return s.rng }

// Run bootstraps the station and then samples every period until ctx is
// cancelled. Cancellation is not an error.
func (s *Station) Run(ctx context.Context) error {
	if err := s.Bootstrap(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return s.Loop(ctx)
}

// Loop runs Cycle once per period. The sleep after each cycle covers only
// what is left of the period.
func (s *Station) Loop(ctx context.Context) error {
	for {
		start := s.monotonic()
		s.Cycle(ctx)

		remaining := s.period - s.monotonic().Sub(start)
		if remaining < 0 {
			s.logger.Warn("cycle overran period", "period", s.period, "overrun", -remaining)
			remaining = 0
		}
		if err := s.sleep(ctx, remaining); err != nil {
			return nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
