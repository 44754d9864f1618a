package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/wilot/weather-station/internal/ingest"
	"github.com/wilot/weather-station/internal/utils"
)

type healthResponse struct {
	Status string        `json:"status"`
	MQTT   string        `json:"mqtt"`
	Ingest *ingest.Stats `json:"ingest,omitempty"`
}

type healthchecker struct {
	db     *sql.DB
	broker BrokerStatus
	stats  StatsSource
}

// handleHealthz fails only when the database is unreachable. A broker that
// is down is reported but does not make the service unhealthy.
func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var ok int
	if err := h.db.QueryRowContext(r.Context(), `SELECT 1`).Scan(&ok); err != nil {
		slog.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}

	resp := healthResponse{Status: "ok", MQTT: "disabled"}
	if h.broker != nil {
		resp.MQTT = "disconnected"
		if h.broker.IsConnected() {
			resp.MQTT = "connected"
		}
	}
	if h.stats != nil {
		s := h.stats.Stats()
		resp.Ingest = &s
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB, broker BrokerStatus, stats StatsSource) {
	h := &healthchecker{db: db, broker: broker, stats: stats}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}
