package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/starchallenge/internal/adapters/mq/queue"
	"github.com/okian/starchallenge/internal/domain/dedupe"
	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/internal/domain/rewards"
	"github.com/okian/starchallenge/pkg/logger"
	"github.com/okian/starchallenge/pkg/metrics"
)

// rewardProcessor grants the stars of a performance and then evaluates tier
// unlocks for the credited user. Queued jobs and manual grants share it.
type rewardProcessor struct {
	rewards *rewards.Engine
	deduper dedupe.Deduper
	log     logger.Logger
}

func (p *rewardProcessor) Process(ctx context.Context, j queue.Job) error {
	_, err := p.grant(ctx, j.PerformanceID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAlreadyGranted):
		p.log.Debug(ctx, "stars already granted, skipping job",
			logger.String("performanceId", j.PerformanceID),
		)
		return nil
	case errors.Is(err, model.ErrNotFound):
		// Deleted before the job ran; nothing to credit.
		p.log.Debug(ctx, "performance gone before reward job ran",
			logger.String("performanceId", j.PerformanceID),
		)
		return nil
	default:
		return fmt.Errorf("reward job %s: %w", j.PerformanceID, err)
	}
}

// grant credits a performance once. The deduper is a fast path in front of
// the ledger, which is the durable guard.
func (p *rewardProcessor) grant(ctx context.Context, performanceID string) (rewards.Grant, error) {
	key := dedupe.StarGrantKey(performanceID)
	if p.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordJobDuplicate()
		return rewards.Grant{}, fmt.Errorf("%w: %s", ErrAlreadyGranted, performanceID)
	}

	g, err := p.rewards.Grant(ctx, performanceID)
	if err != nil {
		if errors.Is(err, ErrAlreadyGranted) {
			metrics.RecordJobDuplicate()
			return rewards.Grant{}, err
		}
		p.deduper.Unrecord(ctx, key)
		return rewards.Grant{}, err
	}

	unlocked, err := p.rewards.EvaluateTierUnlocks(ctx, g.UserID)
	if err != nil {
		return g, fmt.Errorf("evaluate tiers: %w", err)
	}
	if len(unlocked) > 0 {
		p.log.Info(ctx, "tiers unlocked",
			logger.String("userId", g.UserID),
			logger.Int("rewards", len(unlocked)),
		)
	}
	return g, nil
}
