package sensor

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestValue(t *testing.T) {
	tests := []struct {
		name   string
		in     Value
		wantOK bool
		wantOr float64
	}{
		{"some", Some(21.5), true, 21.5},
		{"zero is a reading", Some(0), true, 0},
		{"nan", Some(math.NaN()), false, -1},
		{"inf", Some(math.Inf(1)), false, -1},
		{"none", None(), false, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.in.OK() != tt.wantOK {
				t.Fatalf("OK() = %v, want %v", tt.in.OK(), tt.wantOK)
			}
			if got := tt.in.Or(-1); got != tt.wantOr {
				t.Fatalf("Or(-1) = %v, want %v", got, tt.wantOr)
			}
		})
	}
}

func TestValueLogValue(t *testing.T) {
	if got := None().LogValue().String(); got != "unavailable" {
		t.Errorf("None().LogValue() = %q", got)
	}
	if got := Some(1.5).LogValue().Float64(); got != 1.5 {
		t.Errorf("Some(1.5).LogValue() = %v", got)
	}
}

func writeIIO(t *testing.T, dir, name, value string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIIOHumidity(t *testing.T) {
	dir := t.TempDir()
	writeIIO(t, dir, "in_temp_input", "21300\n")
	writeIIO(t, dir, "in_humidityrelative_input", "44000\n")

	s := NewIIOHumidity(dir)
	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	h, err := s.ReadHumidity()
	if err != nil {
		t.Fatalf("ReadHumidity: %v", err)
	}
	if v, _ := h.Temperature.Get(); v != 21.3 {
		t.Errorf("temperature = %v, want 21.3", v)
	}
	if v, _ := h.Humidity.Get(); v != 44 {
		t.Errorf("humidity = %v, want 44", v)
	}
}

func TestIIOHumidity_MissingDevice(t *testing.T) {
	s := NewIIOHumidity(filepath.Join(t.TempDir(), "nope"))
	if err := s.Begin(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Begin() = %v, want ErrNotFound", err)
	}
}

func TestIIOHumidity_PartialRead(t *testing.T) {
	dir := t.TempDir()
	writeIIO(t, dir, "in_temp_input", "21300")
	writeIIO(t, dir, "in_humidityrelative_input", "garbage")

	h, err := NewIIOHumidity(dir).ReadHumidity()
	if err == nil {
		t.Fatal("expected an error for an unparsable channel")
	}
	if !h.Temperature.OK() {
		t.Error("temperature should still be available")
	}
	if h.Humidity.OK() {
		t.Error("humidity should be unavailable")
	}
}
