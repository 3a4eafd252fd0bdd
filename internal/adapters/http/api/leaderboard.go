package api

import (
	"context"
	"net/http"

	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/internal/domain/types"
	"github.com/okian/starchallenge/pkg/logger"
)

// LeaderboardDependencies defines the ranking read and finalize operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, challengeID string, refresh bool) ([]types.LeaderboardEntry, error)
	Statistics(ctx context.Context, challengeID string) (types.Statistics, error)
	Recompute(ctx context.Context, challengeID string) (int, error)
	SelectWinners(ctx context.Context, challengeID string, count int) ([]model.Winner, error)
	ListWinners(ctx context.Context, challengeID string) ([]model.Winner, error)
}

// LeaderboardHandler handles leaderboard, statistics and winner requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
	log  logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, log logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, log: log}
}

type recomputeResponse struct {
	ChallengeID  string `json:"challengeId"`
	Participants int    `json:"participants"`
}

// HandleGetLeaderboard handles GET /api/challenges/{id}/leaderboard?refresh=bool.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	refresh, err := queryBool(r, "refresh")
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	entries, err := h.deps.Leaderboard(r.Context(), id, refresh)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	if entries == nil {
		entries = []types.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGetStatistics handles GET /api/challenges/{id}/statistics.
func (h *LeaderboardHandler) HandleGetStatistics(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_statistics"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	stats, err := h.deps.Statistics(r.Context(), id)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleRecompute handles POST /api/challenges/{id}/recompute.
func (h *LeaderboardHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	const op = "api.recompute"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	n, err := h.deps.Recompute(r.Context(), id)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, recomputeResponse{ChallengeID: id, Participants: n})
}

// HandleSelectWinners handles POST /api/challenges/{id}/winners?count=N.
func (h *LeaderboardHandler) HandleSelectWinners(w http.ResponseWriter, r *http.Request) {
	const op = "api.select_winners"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	count, err := queryInt(r, "count")
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	winners, err := h.deps.SelectWinners(r.Context(), id, count)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	if winners == nil {
		winners = []model.Winner{}
	}
	writeJSON(w, http.StatusOK, winners)
}

// HandleListWinners handles GET /api/challenges/{id}/winners.
func (h *LeaderboardHandler) HandleListWinners(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_winners"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	winners, err := h.deps.ListWinners(r.Context(), id)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	if winners == nil {
		winners = []model.Winner{}
	}
	writeJSON(w, http.StatusOK, winners)
}
