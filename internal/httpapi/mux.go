// Package httpapi serves the ingest side's read-only HTTP API.
package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/wilot/weather-station/internal/ingest"
	"github.com/wilot/weather-station/internal/storage"
)

// BrokerStatus reports the subscriber's connection.
type BrokerStatus interface {
	IsConnected() bool
}

// StatsSource reports ingest counters.
type StatsSource interface {
	Stats() ingest.Stats
}

func NewMux(db *sql.DB, broker BrokerStatus, stats StatsSource) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, broker, stats)
	registerSamples(mux, storage.NewRepository(db))
	return mux
}
