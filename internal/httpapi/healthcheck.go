package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/hbl-templ/bakerloo-line-extension/internal/utils"
)

// BrokerStatus reports whether the invalidation broker connection is up.
type BrokerStatus interface {
	Enabled() bool
	IsConnected() bool
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db     *sql.DB
	broker BrokerStatus
}

func NewHealthchecker(db *sql.DB, broker BrokerStatus) healthchecker {
	return &healthcheckerImpl{db: db, broker: broker}
}

type healthResponse struct {
	Status string `json:"status"`
	MQTT   string `json:"mqtt"`
}

func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var ok int
	if err := h.db.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		slog.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}
	// A missing broker degrades cache invalidation only; the dashboard keeps serving.
	utils.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", MQTT: brokerState(h.broker)})
}

func brokerState(b BrokerStatus) string {
	switch {
	case b == nil || !b.Enabled():
		return "disabled"
	case b.IsConnected():
		return "connected"
	default:
		return "disconnected"
	}
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB, broker BrokerStatus) {
	healthchecker := NewHealthchecker(db, broker)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
