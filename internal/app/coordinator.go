package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/starchallenge/internal/domain/keylock"
	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/internal/domain/scoring"
	"github.com/okian/starchallenge/pkg/logger"
	"github.com/okian/starchallenge/pkg/metrics"
)

// ScoreComputer recomputes and persists one participant's total score.
type ScoreComputer interface {
	Compute(ctx context.Context, participantID string) (scoring.Result, error)
}

// Publisher pushes fresh challenge state to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, challengeID string) int
	NotifyPerformanceChange(challengeID, participantID string, kind model.ChangeKind) int
}

// Coordinator reacts to performance mutations: it recomputes the owning
// participant's score, then broadcasts the challenge leaderboard and
// statistics, then emits a performance_change notification.
type Coordinator struct {
	scores    ScoreComputer
	publisher Publisher
	locks     *keylock.Locker
	log       logger.Logger
}

// NewCoordinator wires a coordinator. A nil publisher disables broadcasting.
func NewCoordinator(scores ScoreComputer, publisher Publisher, log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Get().Named("coordinator")
	}
	return &Coordinator{
		scores:    scores,
		publisher: publisher,
		locks:     keylock.New(),
		log:       log,
	}
}

// OnPerformanceMutated must be called after the mutation is persisted.
// When the score computation fails nothing is broadcast and the error is returned.
func (c *Coordinator) OnPerformanceMutated(ctx context.Context, participantID string, kind model.ChangeKind) (scoring.Result, error) {
	if participantID == "" || !kind.Valid() {
		return scoring.Result{}, fmt.Errorf("%w: participant %q, change %q", model.ErrInvalid, participantID, kind)
	}

	start := time.Now()
	unlock := c.locks.Lock(participantID)
	defer unlock()

	res, err := c.scores.Compute(ctx, participantID)
	if err != nil {
		metrics.RecordCoordinatorMutation(string(kind), "score_failed", elapsedMs(start))
		c.log.Error(ctx, "score recomputation failed, skipping broadcast",
			logger.String("participantId", participantID),
			logger.String("kind", string(kind)),
			logger.Error(err),
		)
		return scoring.Result{}, fmt.Errorf("recompute after %s: %w", kind, err)
	}

	var delivered int
	if c.publisher != nil {
		delivered = c.publisher.Publish(ctx, res.ChallengeID)
		c.publisher.NotifyPerformanceChange(res.ChallengeID, participantID, kind)
	}

	metrics.RecordCoordinatorMutation(string(kind), "ok", elapsedMs(start))
	c.log.Debug(ctx, "performance mutation propagated",
		logger.String("participantId", participantID),
		logger.String("challengeId", res.ChallengeID),
		logger.String("kind", string(kind)),
		logger.Float64("totalScore", res.Total),
		logger.Int("delivered", delivered),
	)
	return res, nil
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
