// Package ranking derives leaderboards, statistics and winners from stored scores.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/starchallenge/internal/domain/keylock"
	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/internal/domain/types"
	"github.com/okian/starchallenge/pkg/logger"
	"github.com/okian/starchallenge/pkg/metrics"
)

// Store is the subset of storage the engine needs.
type Store interface {
	ListStandings(ctx context.Context, challengeID string) ([]model.Standing, error)
	SaveWinners(ctx context.Context, challengeID string, winners []model.Winner, keepExisting bool) ([]model.Winner, error)
	ListWinners(ctx context.Context, challengeID string) ([]model.Winner, error)
}

// Engine ranks participants. Ranks are derived on every call and never stored.
type Engine struct {
	store             Store
	log               logger.Logger
	now               func() time.Time
	idempotentWinners bool
	defaultCount      int
	finalize          *keylock.Locker
}

// NewEngine creates a ranking engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:             store,
		log:               logger.Named("ranking"),
		now:               time.Now,
		idempotentWinners: true,
		defaultCount:      DefaultWinnerCount,
		finalize:          keylock.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeLeaderboard returns the participants of a challenge ordered by total
// score descending, earlier joiners first on ties, ranked 1..N.
func (e *Engine) ComputeLeaderboard(ctx context.Context, challengeID string) ([]types.LeaderboardEntry, error) {
	if challengeID == "" {
		return nil, fmt.Errorf("%w: empty challenge id", ErrInvalidInput)
	}
	start := time.Now()
	standings, err := e.store.ListStandings(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("compute leaderboard: %w", err)
	}
	entries := Rank(standings)
	metrics.RecordLeaderboardComputation(float64(time.Since(start).Microseconds()) / 1000)
	return entries, nil
}

// Rank orders standings and assigns sequential ranks. The input is not modified.
func Rank(standings []model.Standing) []types.LeaderboardEntry {
	sorted := make([]model.Standing, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Participant, sorted[j].Participant
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	entries := make([]types.LeaderboardEntry, len(sorted))
	for i, s := range sorted {
		entries[i] = types.LeaderboardEntry{
			Rank: i + 1,
			User: types.UserSummary{
				ID:    s.User.ID,
				Name:  s.User.Name,
				Email: s.User.Email,
				Role:  s.User.Role,
			},
			TotalScore:       s.Participant.TotalScore,
			ParticipantID:    s.Participant.ID,
			UserID:           s.Participant.UserID,
			ChallengeID:      s.Participant.ChallengeID,
			ValidationStatus: s.Participant.ValidationStatus,
			JoinedAt:         s.Participant.CreatedAt,
		}
	}
	return entries
}

// ComputeStatistics summarizes the current leaderboard of a challenge.
func (e *Engine) ComputeStatistics(ctx context.Context, challengeID string) (types.Statistics, error) {
	entries, err := e.ComputeLeaderboard(ctx, challengeID)
	if err != nil {
		return types.Statistics{}, err
	}
	return Summarize(entries, e.now()), nil
}

// Summarize derives statistics from a ranked leaderboard: the first row holds
// the maximum and the last the minimum.
func Summarize(entries []types.LeaderboardEntry, at time.Time) types.Statistics {
	stats := types.Statistics{
		TotalParticipants: len(entries),
		ComputedAt:        at.UTC(),
	}
	if len(entries) == 0 {
		return stats
	}
	var sum float64
	for _, en := range entries {
		sum += en.TotalScore
	}
	stats.MaxScore = entries[0].TotalScore
	stats.MinScore = entries[len(entries)-1].TotalScore
	stats.MeanScore = sum / float64(len(entries))
	return stats
}

// SelectWinners persists the top count leaderboard entries as winners ranked
// 1..count. count 0 means the configured default. With idempotent winners a
// challenge that already has winners returns them unchanged.
func (e *Engine) SelectWinners(ctx context.Context, challengeID string, count int) ([]model.Winner, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative winner count %d", ErrInvalidInput, count)
	}
	if count == 0 {
		count = e.defaultCount
	}

	unlock := e.finalize.Lock(challengeID)
	defer unlock()

	entries, err := e.ComputeLeaderboard(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if len(entries) > count {
		entries = entries[:count]
	}

	winners := make([]model.Winner, len(entries))
	for i, en := range entries {
		winners[i] = model.Winner{
			UserID:      en.UserID,
			ChallengeID: challengeID,
			Rank:        i + 1,
		}
	}

	saved, err := e.store.SaveWinners(ctx, challengeID, winners, e.idempotentWinners)
	if err != nil {
		return nil, fmt.Errorf("select winners: %w", err)
	}
	metrics.RecordWinnersSelected(len(saved))
	e.log.Info(ctx, "winners selected",
		logger.String("challengeId", challengeID),
		logger.Int("count", len(saved)),
		logger.Bool("idempotent", e.idempotentWinners),
	)
	return saved, nil
}

// ListWinners returns the stored winners of a challenge.
func (e *Engine) ListWinners(ctx context.Context, challengeID string) ([]model.Winner, error) {
	winners, err := e.store.ListWinners(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("list winners: %w", err)
	}
	return winners, nil
}
