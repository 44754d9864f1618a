package station

import (
	"context"
	"time"

	"github.com/wilot/weather-station/internal/record"
	"github.com/wilot/weather-station/internal/sensor"
)

// Cycle samples every sensor once, publishes the record and services the
// transport. Nothing in a cycle is fatal. The published record is returned.
func (s *Station) Cycle(ctx context.Context) record.Record {
	if err := s.indicator.Toggle(); err != nil {
		s.logger.Warn("status indicator", "error", err)
	}

	now := s.now()
	s.logger.Info("sampling", "time", now.Format("Monday, January 02 2006 15:04:05 MST"))

	rec := s.sample(now)
	s.logger.Debug("record assembled", "record", rec)

	payload := s.schema.Encode(rec)
	if err := s.transport.Publish(s.topic, payload); err != nil {
		s.logger.Warn("publish failed", "topic", s.topic, "state", s.transport.State().String(), "error", err)
	} else {
		s.logger.Info("published", "topic", s.topic, "bytes", len(payload))
	}

	if !s.transport.IsConnected() {
		if err := s.broker.Attempt(ctx); err != nil {
			s.logger.Warn("mqtt reconnect failed", "state", s.transport.State().String(), "error", err)
		} else {
			s.logger.Info("mqtt reconnected")
		}
	}

	s.transport.Loop()
	return rec
}

func (s *Station) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return s.monotonic()
}

// sample reads each sensor and folds the good values into the carried
// record. Fields that could not be read keep their previous value.
func (s *Station) sample(now time.Time) record.Record {
	var avail record.Mask

	w, err := s.weather.ReadWeather()
	if err != nil {
		s.logger.Warn("sensor read failed", "sensor", s.weather.Name(), "error", err)
	}
	s.logger.Info("weather",
		"temperature_c", w.Temperature,
		"pressure_pa", w.Pressure,
		"humidity_pct", w.Humidity,
	)
	setFloat(&s.last.WeatherTemperature, w.Temperature, record.FieldWeatherTemperature, &avail)
	setFloat(&s.last.WeatherPressure, w.Pressure, record.FieldWeatherPressure, &avail)
	setFloat(&s.last.WeatherHumidity, w.Humidity, record.FieldWeatherHumidity, &avail)

	var h sensor.Humidity
	if s.humidityUp {
		h, err = s.humidity.ReadHumidity()
		if err != nil {
			s.logger.Warn("sensor read failed", "sensor", s.humidity.Name(), "error", err)
		}
		s.logger.Info("humidity",
			"temperature_c", h.Temperature,
			"humidity_pct", h.Humidity,
		)
	}
	setFloat(&s.last.HumidityTemperature, h.Temperature, record.FieldHumidityTemperature, &avail)
	setFloat(&s.last.HumidityHumidity, h.Humidity, record.FieldHumidityHumidity, &avail)

	var a sensor.AirQuality
	if s.airUp {
		if h.Temperature.OK() && h.Humidity.OK() {
			if err := s.air.Calibrate(h.Temperature, h.Humidity); err != nil {
				s.logger.Debug("air-quality compensation not updated", "error", err)
			}
		}
		a, err = s.air.ReadAirQuality()
		if err != nil {
			s.logger.Warn("sensor read failed", "sensor", s.air.Name(), "error", err)
		}
		s.logger.Info("air quality",
			"temperature_c", a.Temperature,
			"eco2_ppm", a.ECO2,
			"tvoc_ppb", a.TVOC,
		)
	}
	setFloat(&s.last.AirTemperature, a.Temperature, record.FieldAirTemperature, &avail)
	setUint16(&s.last.AirECO2, a.ECO2, record.FieldAirECO2, &avail)
	setUint16(&s.last.AirTVOC, a.TVOC, record.FieldAirTVOC, &avail)

	rec := s.last
	rec.Timestamp = now.Unix()
	rec.Available = avail
	rec.Available.Set(record.FieldMagic)
	rec.Available.Set(record.FieldTimestamp)
	return rec
}

func setFloat(dst *float32, v sensor.Value, id record.FieldID, avail *record.Mask) {
	if f, ok := v.Get(); ok {
		*dst = float32(f)
		avail.Set(id)
	}
}

// setUint16 clamps to the field's range.
func setUint16(dst *uint16, v sensor.Value, id record.FieldID, avail *record.Mask) {
	f, ok := v.Get()
	if !ok {
		return
	}
	switch {
	case f < 0:
		f = 0
	case f > 0xFFFF:
		f = 0xFFFF
	}
	*dst = uint16(f)
	avail.Set(id)
}
