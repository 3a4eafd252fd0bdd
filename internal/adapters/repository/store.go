// Package repository persists the challenge domain through gorm.
package repository

import (
	"context"
	"time"

	"github.com/okian/starchallenge/internal/domain/model"
)

// Standing is model.Standing, kept here for callers that only import the store.
type Standing = model.Standing

// Store is the storage collaborator consumed by the engines and the API.
// Every method wraps driver failures with ErrStore and missing rows with ErrNotFound.
type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (model.User, error)

	CreateChallenge(ctx context.Context, c *model.Challenge) error
	GetChallenge(ctx context.Context, id string) (model.Challenge, error)
	// SyncChallengeStatuses persists derived status transitions and returns how many rows moved.
	SyncChallengeStatuses(ctx context.Context, now time.Time) (int64, error)

	CreateCriterion(ctx context.Context, c *model.Criterion) error
	ListCriteriaByChallenge(ctx context.Context, challengeID string) ([]model.Criterion, error)

	CreateParticipant(ctx context.Context, p *model.Participant) error
	GetParticipant(ctx context.Context, id string) (model.Participant, error)
	ListParticipantsByChallenge(ctx context.Context, challengeID string) ([]model.Participant, error)
	ListStandings(ctx context.Context, challengeID string) ([]Standing, error)
	// UpdateParticipantScore writes the total_score column only.
	UpdateParticipantScore(ctx context.Context, participantID string, score float64) error

	CreatePerformance(ctx context.Context, p *model.Performance) error
	GetPerformance(ctx context.Context, id string) (model.Performance, error)
	UpdatePerformance(ctx context.Context, p *model.Performance) error
	DeletePerformance(ctx context.Context, id string) (model.Performance, error)
	ListPerformancesByParticipant(ctx context.Context, participantID string) ([]model.Performance, error)

	// AddStar fails with ErrDuplicate when the performance is already credited.
	AddStar(ctx context.Context, s *model.Star) error
	HasStarForPerformance(ctx context.Context, performanceID string) (bool, error)
	SumStars(ctx context.Context, userID string) (int, error)

	CreateTier(ctx context.Context, t *model.Tier) error
	ListTiers(ctx context.Context) ([]model.Tier, error)

	AddReward(ctx context.Context, r *model.Reward) error
	ListRewardsByUser(ctx context.Context, userID string) ([]model.Reward, error)

	// SaveWinners inserts winners in one transaction. With keepExisting set,
	// a challenge that already has winners is left untouched and its rows returned.
	SaveWinners(ctx context.Context, challengeID string, winners []model.Winner, keepExisting bool) ([]model.Winner, error)
	ListWinners(ctx context.Context, challengeID string) ([]model.Winner, error)

	Ping(ctx context.Context) error
	Close() error
}
