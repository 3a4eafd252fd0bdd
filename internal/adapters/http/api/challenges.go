package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/pkg/logger"
)

// ChallengeDependencies defines challenge setup operations.
type ChallengeDependencies interface {
	CreateChallenge(ctx context.Context, c *model.Challenge) error
	GetChallenge(ctx context.Context, id string) (model.Challenge, error)
	CreateCriterion(ctx context.Context, c *model.Criterion) error
	JoinChallenge(ctx context.Context, p *model.Participant) error
}

// ChallengeHandler handles challenge, criterion and participant requests.
type ChallengeHandler struct {
	deps ChallengeDependencies
	log  logger.Logger
}

// NewChallengeHandler creates a new challenge handler.
func NewChallengeHandler(deps ChallengeDependencies, log logger.Logger) *ChallengeHandler {
	return &ChallengeHandler{deps: deps, log: log}
}

type challengeRequest struct {
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	CreatorID string    `json:"creatorId"`
}

func (c challengeRequest) validate() error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return errors.New("missing name")
	case c.StartDate.IsZero() || c.EndDate.IsZero():
		return errors.New("startDate and endDate are required RFC3339 timestamps")
	}
	return nil
}

type criterionRequest struct {
	Name   string              `json:"name"`
	Weight float64             `json:"weight"`
	Kind   model.CriterionKind `json:"kind"`
}

type participantRequest struct {
	UserID string `json:"userId"`
}

// HandleCreate handles POST /api/challenges.
func (h *ChallengeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_challenge"
	var req challengeRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	if err := req.validate(); err != nil {
		respond(w, r, h.log, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	c := &model.Challenge{
		Name:      strings.TrimSpace(req.Name),
		StartDate: req.StartDate.UTC(),
		EndDate:   req.EndDate.UTC(),
		CreatorID: req.CreatorID,
	}
	if err := h.deps.CreateChallenge(r.Context(), c); err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleGet handles GET /api/challenges/{id}.
func (h *ChallengeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_challenge"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	c, err := h.deps.GetChallenge(r.Context(), id)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleCreateCriterion handles POST /api/challenges/{id}/criteria.
func (h *ChallengeHandler) HandleCreateCriterion(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_criterion"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	var req criterionRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	c := &model.Criterion{
		Name:        strings.TrimSpace(req.Name),
		Weight:      req.Weight,
		Kind:        req.Kind,
		ChallengeID: id,
	}
	if err := h.deps.CreateCriterion(r.Context(), c); err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleJoin handles POST /api/challenges/{id}/participants.
func (h *ChallengeHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	const op = "api.join_challenge"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	var req participantRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	p := &model.Participant{UserID: strings.TrimSpace(req.UserID), ChallengeID: id}
	if err := h.deps.JoinChallenge(r.Context(), p); err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
