package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/internal/domain/types"
	"github.com/okian/starchallenge/pkg/logger"
)

// UserDependencies defines user, tier and reward operations.
type UserDependencies interface {
	CreateUser(ctx context.Context, u *model.User) error
	Progress(ctx context.Context, userID string) (types.TierProgress, error)
	EvaluateRewards(ctx context.Context, userID string) ([]model.Reward, error)
	ListRewards(ctx context.Context, userID string) ([]model.Reward, error)
	CreateTier(ctx context.Context, t *model.Tier) error
	ListTiers(ctx context.Context) ([]model.Tier, error)
}

// UserHandler handles user, reward and tier requests.
type UserHandler struct {
	deps UserDependencies
	log  logger.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(deps UserDependencies, log logger.Logger) *UserHandler {
	return &UserHandler{deps: deps, log: log}
}

type userRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type tierRequest struct {
	Name        string `json:"name"`
	MinStars    int    `json:"minStars"`
	Description string `json:"description"`
}

// HandleCreate handles POST /api/users.
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_user"
	var req userRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	u := &model.User{Name: strings.TrimSpace(req.Name), Email: strings.TrimSpace(req.Email), Role: req.Role}
	if u.Role == "" {
		u.Role = "participant"
	}
	if err := h.deps.CreateUser(r.Context(), u); err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// HandleProgress handles GET /api/users/{id}/progress.
func (h *UserHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.tier_progress"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	p, err := h.deps.Progress(r.Context(), id)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleEvaluateRewards handles POST /api/users/{id}/rewards/evaluate and
// returns only the rewards created by this call.
func (h *UserHandler) HandleEvaluateRewards(w http.ResponseWriter, r *http.Request) {
	const op = "api.evaluate_rewards"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	created, err := h.deps.EvaluateRewards(r.Context(), id)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	if created == nil {
		created = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, created)
}

// HandleListRewards handles GET /api/users/{id}/rewards.
func (h *UserHandler) HandleListRewards(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_rewards"
	id, err := pathID(r, op)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	rewards, err := h.deps.ListRewards(r.Context(), id)
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

// HandleCreateTier handles POST /api/tiers.
func (h *UserHandler) HandleCreateTier(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_tier"
	var req tierRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	t := &model.Tier{Name: strings.TrimSpace(req.Name), MinStars: req.MinStars, Description: req.Description}
	if err := h.deps.CreateTier(r.Context(), t); err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// HandleListTiers handles GET /api/tiers.
func (h *UserHandler) HandleListTiers(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_tiers"
	tiers, err := h.deps.ListTiers(r.Context())
	if err != nil {
		respond(w, r, h.log, op, err)
		return
	}
	if tiers == nil {
		tiers = []model.Tier{}
	}
	writeJSON(w, http.StatusOK, tiers)
}
