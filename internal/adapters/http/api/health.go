package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/starchallenge/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthPingTimeout = 2 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check and metrics requests.
type HealthHandler struct {
	pinger Pinger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pinger Pinger) *HealthHandler {
	return &HealthHandler{pinger: pinger}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
}

// HandleMetrics serves the custom registry merged with the default collectors.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
