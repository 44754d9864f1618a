package sensor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IIOHumidity reads a DHT22 (or DHT11) bound to the Linux dht11 IIO driver.
// The kernel exposes temperature in milli °C and humidity in milli %RH.
type IIOHumidity struct {
	dir string
}

func NewIIOHumidity(dir string) *IIOHumidity {
	return &IIOHumidity{dir: dir}
}

func (s *IIOHumidity) Name() string { return "dht22" }

func (s *IIOHumidity) Begin() error {
	for _, f := range []string{"in_temp_input", "in_humidityrelative_input"} {
		if _, err := os.Stat(filepath.Join(s.dir, f)); err != nil {
			return fmt.Errorf("%w: dht22 at %s: %v", ErrNotFound, s.dir, err)
		}
	}
	return nil
}

// ReadHumidity reads both channels. The dht11 driver fails individual reads
// with EIO on checksum errors; a failed channel is reported as unavailable.
func (s *IIOHumidity) ReadHumidity() (Humidity, error) {
	t, terr := s.readMilli("in_temp_input")
	h, herr := s.readMilli("in_humidityrelative_input")

	out := Humidity{Temperature: t, Humidity: h}
	if err := errors.Join(terr, herr); err != nil {
		return out, fmt.Errorf("dht22 read: %w", err)
	}
	return out, nil
}

func (s *IIOHumidity) readMilli(name string) (Value, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return None(), err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return None(), fmt.Errorf("parse %s: %w", name, err)
	}
	return Some(float64(n) / 1000), nil
}

func (s *IIOHumidity) Close() error { return nil }
