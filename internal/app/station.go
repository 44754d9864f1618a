// Package app wires the packages under internal/ into the station and
// ingest programs.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wilot/weather-station/internal/config"
	"github.com/wilot/weather-station/internal/discovery"
	"github.com/wilot/weather-station/internal/indicator"
	"github.com/wilot/weather-station/internal/link"
	"github.com/wilot/weather-station/internal/mqtt"
	"github.com/wilot/weather-station/internal/record"
	"github.com/wilot/weather-station/internal/sensor"
	"github.com/wilot/weather-station/internal/station"
	"github.com/wilot/weather-station/internal/timesync"
	"github.com/wilot/weather-station/internal/wifi"
)

const discoveryTimeout = 5 * time.Second

// RunStation runs the sampling station until ctx is cancelled.
func RunStation(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"wifiSSID", cfg.WiFiSSID,
		"wifiInterface", cfg.WiFiInterface,
		"ntpServer", cfg.NTPServer,
		"timeZone", cfg.TimeZone.String(),
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"mqttDiscover", cfg.MQTTDiscover,
		"samplePeriod", cfg.SamplePeriod,
		"recordLayout", cfg.RecordLayout.String(),
		"bme280Driver", cfg.BME280Driver,
		"humidityDriver", cfg.HumidityDriver,
	)

	assoc, err := wifi.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := assoc.Close(); err != nil {
			logger.Error("wifi close", "error", err)
		}
	}()
	network := newWiFiLink(cfg, assoc, logger)

	if cfg.MQTTDiscover {
		cfg = discoverBroker(ctx, cfg, network, logger)
	}

	sensors, err := sensor.Open(cfg)
	if err != nil {
		return fmt.Errorf("open sensors: %w", err)
	}
	defer func() {
		if err := sensors.Close(); err != nil {
			logger.Error("sensor close", "error", err)
		}
	}()

	led := openIndicator(cfg, logger)
	defer func() {
		if err := led.Close(); err != nil {
			logger.Error("indicator close", "error", err)
		}
	}()

	client := mqtt.NewClient(cfg, logger)
	defer client.Disconnect()

	clock := timesync.New(cfg, logger)
	defer clock.Wait()

	// Stops the clock's resync loop when Run returns early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := station.New(station.Options{
		Weather:          sensors.Weather,
		Air:              sensors.Air,
		Humidity:         sensors.Humidity,
		Transport:        client,
		Network:          network,
		Indicator:        led,
		Clock:            clock,
		Schema:           record.SchemaFor(cfg.RecordLayout),
		Topic:            cfg.MQTTTopic,
		Period:           cfg.SamplePeriod,
		BootstrapTimeout: cfg.BootstrapTimeout,
		Logger:           logger,
	})
	return st.Run(ctx)
}

// newWiFiLink supervises the association. An attempt that the endpoint
// accepted but never completed is abandoned after WiFiAttemptTimeout and
// retried on the link's backoff.
func newWiFiLink(cfg config.Config, ep link.Endpoint, logger *slog.Logger) *link.Link {
	return link.New("wifi", ep, link.Options{
		PollInterval:   cfg.WiFiPollInterval,
		AttemptTimeout: cfg.WiFiAttemptTimeout,
	}, logger)
}

// discoverBroker replaces the configured broker with one announced over
// mDNS. The network has to be up first; on any failure the configured
// broker is kept.
func discoverBroker(ctx context.Context, cfg config.Config, network *link.Link, logger *slog.Logger) config.Config {
	if err := network.Await(ctx, cfg.BootstrapTimeout); err != nil {
		logger.Warn("network not up for broker discovery", "error", err)
		return cfg
	}
	b, err := discovery.FindBroker(ctx, discoveryTimeout, logger)
	if err != nil {
		logger.Warn("broker discovery failed, using configured broker",
			"broker", cfg.BrokerAddr(), "error", err)
		return cfg
	}
	cfg.MQTTBroker = b.Host
	cfg.MQTTPort = b.Port
	return cfg
}

func openIndicator(cfg config.Config, logger *slog.Logger) indicator.Indicator {
	if cfg.StatusLEDPin == "" {
		return indicator.NewLog(logger)
	}
	led, err := indicator.OpenLED(cfg.StatusLEDPin)
	if err != nil {
		logger.Warn("status led unavailable, logging toggles instead", "pin", cfg.StatusLEDPin, "error", err)
		return indicator.NewLog(logger)
	}
	return led
}
