package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/internal/domain/rewards"
	"github.com/okian/starchallenge/internal/domain/scoring"
	"github.com/okian/starchallenge/pkg/logger"
	"gorm.io/datatypes"
)

// PerformanceDependencies defines the performance mutation operations.
type PerformanceDependencies interface {
	CreatePerformance(ctx context.Context, p *model.Performance) (scoring.Result, error)
	GetPerformance(ctx context.Context, id string) (model.Performance, error)
	UpdatePerformance(ctx context.Context, p *model.Performance) (model.Performance, error)
	DeletePerformance(ctx context.Context, id string) error
	GrantStars(ctx context.Context, performanceID string) (rewards.Grant, error)
}

// PerformanceHandler handles performance requests. Every mutation triggers a
// score recomputation and a live broadcast before responding.
type PerformanceHandler struct {
	deps PerformanceDependencies
	log  logger.Logger
}

// NewPerformanceHandler creates a new performance handler.
func NewPerformanceHandler(deps PerformanceDependencies, log logger.Logger) *PerformanceHandler {
	return &PerformanceHandler{deps: deps, log: log}
}

// performanceRequest mirrors the OpenAPI schema for performance writes.
type performanceRequest struct {
	ParticipantID string          `json:"participantId"`
	CriterionID   *string         `json:"criterionId"`
	Value         *float64        `json:"value"`
	Rank          int             `json:"rank"`
	Details       json.RawMessage `json:"details"`
}

func (p performanceRequest) validate(create bool) error {
	switch {
	case create && strings.TrimSpace(p.ParticipantID) == "":
		return errors.New("missing participantId")
	case p.Value == nil:
		return errors.New("missing value")
	}
	if len(p.Details) > 0 && !json.Valid(p.Details) {
		return errors.New("details must be valid JSON")
	}
	return nil
}

func (p performanceRequest) model(id string) *model.Performance {
	perf := &model.Performance{
		ID:            id,
		ParticipantID: strings.TrimSpace(p.ParticipantID),
		CriterionID:   p.CriterionID,
		Value:         *p.Value,
		Rank:          p.Rank,
	}
	if len(p.Details) > 0 && string(p.Details) != "null" {
		perf.Details = datatypes.JSON(p.Details)
	}
	return perf
}

type performanceResponse struct {
	Performance     model.Performance `json:"performance"`
	TotalScore      float64           `json:"totalScore"`
	MissingCriteria []string          `json:"missingCriteria,omitempty"`
}

type starsResponse struct {
	PerformanceID string `json:"performanceId"`
	UserID        string `json:"userId"`
	Stars         int    `json:"stars"`
}

// HandleCreate handles POST /api/performances.
func (h *PerformanceHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_performance"
	var req performanceRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	if err := req.validate(true); err != nil {
		respond(w, r, h.log, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	perf := req.model("")
	res, err := h.deps.CreatePerformance(r.Context(), perf)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, performanceResponse{
		Performance:     *perf,
		TotalScore:      res.Total,
		MissingCriteria: res.MissingCriteria,
	})
}

// HandleGet handles GET /api/performances/{id}.
func (h *PerformanceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_performance"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	perf, err := h.deps.GetPerformance(r.Context(), id)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

// HandleUpdate handles PUT /api/performances/{id}.
func (h *PerformanceHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_performance"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	var req performanceRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	if err := req.validate(false); err != nil {
		respond(w, r, h.log, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	updated, err := h.deps.UpdatePerformance(r.Context(), req.model(id))
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleDelete handles DELETE /api/performances/{id}.
func (h *PerformanceHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_performance"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	if err := h.deps.DeletePerformance(r.Context(), id); err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGrantStars handles POST /api/performances/{id}/stars.
func (h *PerformanceHandler) HandleGrantStars(w http.ResponseWriter, r *http.Request) {
	const op = "api.grant_stars"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	g, err := h.deps.GrantStars(r.Context(), id)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, starsResponse{PerformanceID: id, UserID: g.UserID, Stars: g.Stars})
}
