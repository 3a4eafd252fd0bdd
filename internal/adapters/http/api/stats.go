package api

import (
	"net/http"

	"github.com/okian/starchallenge/internal/domain/types"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
	LiveStats() types.ConnectionStats
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats())
}

// HandleLiveStats handles GET /api/live/stats requests.
func (h *StatsHandler) HandleLiveStats(w http.ResponseWriter, _ *http.Request) {
	stats := h.statsProvider.LiveStats()
	if stats.ChallengeSubscriptions == nil {
		stats.ChallengeSubscriptions = []types.ChallengeSubscriptions{}
	}
	writeJSON(w, http.StatusOK, stats)
}
