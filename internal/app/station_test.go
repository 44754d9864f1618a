package app

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wilot/weather-station/internal/config"
	"github.com/wilot/weather-station/internal/link"
	"github.com/wilot/weather-station/internal/logging"
	"github.com/wilot/weather-station/internal/station"
)

func TestWiFiLink_RedialsStalledAssociation(t *testing.T) {
	// Every dial is accepted; only the second one ever associates.
	var dials atomic.Int32
	ep := link.EndpointFuncs{
		DialFunc: func(context.Context) error {
			dials.Add(1)
			return nil
		},
		ConnectedFunc: func() bool { return dials.Load() >= 2 },
	}
	cfg := config.Config{
		WiFiPollInterval:   10 * time.Millisecond,
		WiFiAttemptTimeout: 50 * time.Millisecond,
	}
	network := newWiFiLink(cfg, ep, logging.Discard())

	if err := network.Await(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Await: %v (attempts %d)", err, network.Attempts())
	}
	if got := network.Attempts(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestWiFiLink_KeepsRedialing(t *testing.T) {
	var dials atomic.Int32
	ep := link.EndpointFuncs{
		DialFunc: func(context.Context) error {
			dials.Add(1)
			return nil
		},
		ConnectedFunc: func() bool { return false },
	}
	cfg := config.Config{
		WiFiPollInterval:   10 * time.Millisecond,
		WiFiAttemptTimeout: 50 * time.Millisecond,
	}
	network := newWiFiLink(cfg, ep, logging.Discard())

	err := network.Await(context.Background(), 2500*time.Millisecond)
	if !errors.Is(err, link.ErrTimeout) {
		t.Fatalf("Await = %v, want ErrTimeout", err)
	}
	if got := network.Attempts(); got < 2 {
		t.Errorf("attempts = %d, want a redial after the stalled attempt", got)
	}
	if got := network.State(); got == link.Connected {
		t.Errorf("state = %v", got)
	}
}

func TestRunStation_SensorOpenErrorIsNotMissingSensor(t *testing.T) {
	cfg := config.Config{
		AppEnv:         "dev",
		TimeZone:       time.UTC,
		HumidityDriver: "dht11",
	}

	err := RunStation(context.Background(), cfg, logging.Discard())
	if err == nil {
		t.Fatal("expected an error for an unknown humidity driver")
	}
	if errors.Is(err, station.ErrWeatherSensorMissing) {
		t.Errorf("err = %v, must not report a missing weather sensor", err)
	}
	if !strings.Contains(err.Error(), "open sensors") || !strings.Contains(err.Error(), "dht11") {
		t.Errorf("err = %q", err)
	}
}
