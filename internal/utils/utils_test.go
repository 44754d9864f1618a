package utils

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	t.Run("sets content-type and status", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, map[string]string{"key": "value"})

		if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
			t.Errorf("Content-Type = %q; want application/json; charset=utf-8", got)
		}
		if w.Code != http.StatusOK {
			t.Errorf("Code = %d; want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("encodes body as JSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusCreated, map[string]string{"foo": "bar"})

		var got map[string]string
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("body is not valid JSON: %v", err)
		}
		if got["foo"] != "bar" {
			t.Errorf("body[foo] = %q; want bar", got["foo"])
		}
		if w.Code != http.StatusCreated {
			t.Errorf("Code = %d; want %d", w.Code, http.StatusCreated)
		}
	})

	t.Run("unencodable value is a 500", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, map[string]float64{"bad": math.NaN()})

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Code = %d; want 500", w.Code)
		}
	})
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "invalid input")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Code = %d; want %d", w.Code, http.StatusBadRequest)
	}
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if got["error"] != http.StatusText(http.StatusBadRequest) {
		t.Errorf("error = %q", got["error"])
	}
	if got["message"] != "invalid input" {
		t.Errorf("message = %q", got["message"])
	}
}

func TestBytesToHex(t *testing.T) {
	if got := BytesToHex([]byte{0x78, 0x56, 0x34, 0x12, 0x00, 0xff}); got != "7856341200FF" {
		t.Errorf("BytesToHex = %q", got)
	}
	if got := BytesToHex(nil); got != "" {
		t.Errorf("BytesToHex(nil) = %q", got)
	}
}

func TestParseHex(t *testing.T) {
	want := []byte{0x78, 0x56, 0x34, 0x12}
	for _, in := range []string{
		"78563412",
		"0x78563412",
		"78 56 34 12",
		"78:56:34:12",
		"  78-56-34-12\n",
		"0X78563412",
	} {
		got, err := ParseHex(in)
		if err != nil {
			t.Errorf("ParseHex(%q): %v", in, err)
			continue
		}
		if !bytes.Equal(got, want) {
			t.Errorf("ParseHex(%q) = %x", in, got)
		}
	}

	for _, in := range []string{"", "0x", "7", "zz"} {
		if _, err := ParseHex(in); err == nil {
			t.Errorf("ParseHex(%q): expected error", in)
		}
	}
}

func TestParseHex_RoundTripsBytesToHex(t *testing.T) {
	b := []byte{0xde, 0xad, 0xbe, 0xef}
	got, err := ParseHex(BytesToHex(b))
	if err != nil || !bytes.Equal(got, b) {
		t.Fatalf("round trip = %x, %v", got, err)
	}
}
