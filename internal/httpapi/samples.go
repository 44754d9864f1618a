package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/wilot/weather-station/internal/storage"
	"github.com/wilot/weather-station/internal/utils"
)

const (
	defaultLatestLimit = 100
	maxLatestLimit     = 1000
)

// SampleView is a stored sample in engineering units.
type SampleView struct {
	MeasurementTime time.Time `json:"measurementTime"`
	ReceivedTime    time.Time `json:"receivedTime"`

	BME280 struct {
		TemperatureC float64 `json:"temperatureC"`
		PressurePa   float64 `json:"pressurePa"`
		HumidityPct  float64 `json:"humidityPct"`
	} `json:"bme280"`
	CCS811 struct {
		TemperatureC float64 `json:"temperatureC"`
		ECO2ppm      int64   `json:"eco2Ppm"`
		TVOCppb      int64   `json:"tvocPpb"`
	} `json:"ccs811"`
	DHT22 struct {
		TemperatureC float64 `json:"temperatureC"`
		HumidityPct  float64 `json:"humidityPct"`
	} `json:"dht22"`
}

func viewOf(s storage.Sample) SampleView {
	var v SampleView
	v.MeasurementTime = time.Unix(s.MeasurementTime, 0).UTC()
	v.ReceivedTime = time.Unix(s.ReceivedTime, 0).UTC()
	v.BME280.TemperatureC = float64(s.TemperatureBME) / 10
	v.BME280.PressurePa = float64(s.PressureBME)
	v.BME280.HumidityPct = float64(s.HumidityBME) / 100
	v.CCS811.TemperatureC = float64(s.TemperatureCCS811) / 10
	v.CCS811.ECO2ppm = s.ECO2CCS811
	v.CCS811.TVOCppb = s.TVOCCCS811
	v.DHT22.TemperatureC = float64(s.TemperatureDHT22) / 10
	v.DHT22.HumidityPct = float64(s.HumidityDHT22) / 100
	return v
}

type samplesController struct {
	repo storage.SampleRepository
}

func registerSamples(mux *http.ServeMux, repo storage.SampleRepository) {
	c := &samplesController{repo: repo}
	mux.HandleFunc("GET /api/samples/latest", c.handleLatest)
}

func (c *samplesController) handleLatest(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLatestQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	samples, err := c.repo.LatestSamples(r.Context(), limit)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]SampleView, 0, len(samples))
	for _, s := range samples {
		out = append(out, viewOf(s))
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func parseLatestQuery(r *http.Request) (limit int, err error) {
	limit = defaultLatestLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return 0, errors.New("'limit' must be > 0")
		}
		if n > maxLatestLimit {
			return 0, errors.New("'limit' must be <= 1000")
		}
		limit = n
	}
	return limit, nil
}
