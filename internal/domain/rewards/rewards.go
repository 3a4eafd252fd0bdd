// Package rewards grants stars for performances and unlocks tier rewards.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/starchallenge/internal/domain/keylock"
	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/internal/domain/types"
	"github.com/okian/starchallenge/pkg/logger"
	"github.com/okian/starchallenge/pkg/metrics"
)

const (
	// RewardTypeBadge is the type of every tier reward.
	RewardTypeBadge = "Badge"
	// DefaultTierName is reported when no tier has been reached.
	DefaultTierName = "Débutant"
)

// Store is the subset of storage the engine needs.
type Store interface {
	GetPerformance(ctx context.Context, id string) (model.Performance, error)
	GetParticipant(ctx context.Context, id string) (model.Participant, error)
	AddStar(ctx context.Context, s *model.Star) error
	HasStarForPerformance(ctx context.Context, performanceID string) (bool, error)
	SumStars(ctx context.Context, userID string) (int, error)
	ListTiers(ctx context.Context) ([]model.Tier, error)
	AddReward(ctx context.Context, r *model.Reward) error
	ListRewardsByUser(ctx context.Context, userID string) ([]model.Reward, error)
}

// Grant is the outcome of a star grant.
type Grant struct {
	UserID string
	Stars  int
}

// Engine manages the star ledger and tier rewards.
type Engine struct {
	store      Store
	log        logger.Logger
	divisor    float64
	idempotent bool
	locks      *keylock.Locker
	now        func() time.Time
}

// NewEngine creates a reward engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		log:        logger.Named("rewards"),
		divisor:    DefaultStarDivisor,
		idempotent: true,
		locks:      keylock.New(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxStarsPerGrant caps a single ledger entry.
const MaxStarsPerGrant = math.MaxInt32

// StarsFor converts a performance value to stars. Negative values earn
// nothing and a grant never exceeds MaxStarsPerGrant.
func StarsFor(value, divisor float64) int {
	if divisor <= 0 {
		divisor = DefaultStarDivisor
	}
	stars := math.Floor(value / divisor)
	switch {
	case math.IsNaN(stars) || stars < 0:
		return 0
	case stars > MaxStarsPerGrant:
		return MaxStarsPerGrant
	}
	return int(stars)
}

// GrantStarsForPerformance appends a ledger entry for the user owning the
// performance and returns the number of stars granted.
func (e *Engine) GrantStarsForPerformance(ctx context.Context, performanceID string) (int, error) {
	g, err := e.Grant(ctx, performanceID)
	return g.Stars, err
}

// Grant is GrantStarsForPerformance that also reports the credited user.
// A performance is credited at most once; later calls fail with
// ErrAlreadyGranted.
func (e *Engine) Grant(ctx context.Context, performanceID string) (Grant, error) {
	if performanceID == "" {
		return Grant{}, fmt.Errorf("%w: empty performance id", ErrInvalidInput)
	}
	unlock := e.locks.Lock("performance:" + performanceID)
	defer unlock()

	perf, err := e.store.GetPerformance(ctx, performanceID)
	if err != nil {
		return Grant{}, fmt.Errorf("grant stars: %w", err)
	}
	participant, err := e.store.GetParticipant(ctx, perf.ParticipantID)
	if err != nil {
		return Grant{}, fmt.Errorf("grant stars: %w", err)
	}

	granted, err := e.store.HasStarForPerformance(ctx, perf.ID)
	if err != nil {
		return Grant{}, fmt.Errorf("grant stars: %w", err)
	}
	if granted {
		return Grant{UserID: participant.UserID}, fmt.Errorf("%w: %s", ErrAlreadyGranted, perf.ID)
	}

	stars := StarsFor(perf.Value, e.divisor)
	pid := perf.ID
	entry := model.Star{
		Total:         stars,
		AwardedAt:     e.now().UTC(),
		Reason:        "Performance " + perf.ID,
		UserID:        participant.UserID,
		PerformanceID: &pid,
	}
	if err := e.store.AddStar(ctx, &entry); err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			// Another process won the unique index on performance_id.
			return Grant{UserID: participant.UserID}, fmt.Errorf("%w: %s", ErrAlreadyGranted, perf.ID)
		}
		return Grant{}, fmt.Errorf("grant stars: %w", err)
	}

	metrics.RecordStarsGranted(stars)
	e.log.Debug(ctx, "stars granted",
		logger.String("performanceId", perf.ID),
		logger.String("userId", participant.UserID),
		logger.Int("stars", stars),
	)
	return Grant{UserID: participant.UserID, Stars: stars}, nil
}

// EvaluateTierUnlocks creates a Badge reward for every tier whose threshold
// the user's balance reaches and returns the rewards created by this call.
func (e *Engine) EvaluateTierUnlocks(ctx context.Context, userID string) ([]model.Reward, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	unlock := e.locks.Lock(userID)
	defer unlock()

	balance, err := e.store.SumStars(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("evaluate tiers: %w", err)
	}
	tiers, err := e.store.ListTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluate tiers: %w", err)
	}

	granted := map[string]struct{}{}
	if e.idempotent {
		existing, err := e.store.ListRewardsByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("evaluate tiers: %w", err)
		}
		for _, r := range existing {
			granted[r.TierID] = struct{}{}
		}
	}

	created := []model.Reward{}
	for _, t := range tiers {
		if t.MinStars > balance {
			continue
		}
		if _, ok := granted[t.ID]; ok {
			continue
		}
		r := model.Reward{
			Type:        RewardTypeBadge,
			Description: "Badge pour le palier " + t.Name,
			AwardedAt:   e.now().UTC(),
			TierID:      t.ID,
			UserID:      userID,
		}
		if err := e.store.AddReward(ctx, &r); err != nil {
			return created, fmt.Errorf("evaluate tiers: %w", err)
		}
		created = append(created, r)
	}

	if len(created) > 0 {
		metrics.RecordRewardsUnlocked(len(created))
		e.log.Info(ctx, "tier rewards unlocked",
			logger.String("userId", userID),
			logger.Int("balance", balance),
			logger.Int("rewards", len(created)),
		)
	}
	return created, nil
}

// Progress reports where the user stands on the tier ladder.
func (e *Engine) Progress(ctx context.Context, userID string) (types.TierProgress, error) {
	if userID == "" {
		return types.TierProgress{}, fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	balance, err := e.store.SumStars(ctx, userID)
	if err != nil {
		return types.TierProgress{}, fmt.Errorf("tier progress: %w", err)
	}
	tiers, err := e.store.ListTiers(ctx)
	if err != nil {
		return types.TierProgress{}, fmt.Errorf("tier progress: %w", err)
	}
	p := ProgressFor(balance, tiers)
	p.UserID = userID
	return p, nil
}

// ProgressFor places balance on tiers, which must be sorted by MinStars.
func ProgressFor(balance int, tiers []model.Tier) types.TierProgress {
	p := types.TierProgress{
		TotalStars: balance,
		Current:    types.TierSummary{Name: DefaultTierName},
		Progress:   100,
	}
	for i := range tiers {
		t := tiers[i]
		if t.MinStars <= balance {
			p.Current = types.TierSummary{ID: t.ID, Name: t.Name, MinStars: t.MinStars}
			continue
		}
		p.Next = &types.TierSummary{ID: t.ID, Name: t.Name, MinStars: t.MinStars}
		break
	}
	if p.Next == nil {
		return p
	}

	p.StarsToNext = p.Next.MinStars - balance
	span := float64(p.Next.MinStars - p.Current.MinStars)
	pct := 100.0
	if span > 0 {
		pct = float64(balance-p.Current.MinStars) / span * 100
	}
	p.Progress = int(math.Round(math.Max(0, math.Min(100, pct))))
	return p
}
