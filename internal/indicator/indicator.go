// Package indicator drives the status LED toggled once per sampling cycle.
package indicator

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Indicator is a two-state heartbeat output.
type Indicator interface {
	Toggle() error
	Close() error
}

// LED toggles a GPIO output pin.
type LED struct {
	pin gpio.PinOut

	mu    sync.Mutex
	level gpio.Level
}

// OpenLED initialises the host and claims the named pin (e.g. "GPIO17").
func OpenLED(name string) (*LED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return NewLED(p)
}

func NewLED(p gpio.PinOut) (*LED, error) {
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio %s: %w", p, err)
	}
	return &LED{pin: p, level: gpio.Low}, nil
}

func (l *LED) Toggle() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := !l.level
	if err := l.pin.Out(next); err != nil {
		return fmt.Errorf("gpio %s: %w", l.pin, err)
	}
	l.level = next
	return nil
}

func (l *LED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pin.Out(gpio.Low)
}

// Log stands in for the LED on boards without one.
type Log struct {
	logger *slog.Logger
	on     bool
}

func NewLog(logger *slog.Logger) *Log { return &Log{logger: logger} }

func (l *Log) Toggle() error {
	l.on = !l.on
	l.logger.Debug("heartbeat", "on", l.on)
	return nil
}

func (l *Log) Close() error { return nil }
