// Package service wires the domain engines, the reward pipeline and the live
// broker into the operations served by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/starchallenge/internal/adapters/live"
	"github.com/okian/starchallenge/internal/adapters/mq/queue"
	"github.com/okian/starchallenge/internal/adapters/mq/worker"
	"github.com/okian/starchallenge/internal/adapters/repository"
	"github.com/okian/starchallenge/internal/domain/dedupe"
	"github.com/okian/starchallenge/internal/domain/keylock"
	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/internal/domain/ranking"
	"github.com/okian/starchallenge/internal/domain/rewards"
	"github.com/okian/starchallenge/internal/domain/scoring"
	"github.com/okian/starchallenge/internal/domain/types"
	"github.com/okian/starchallenge/pkg/logger"
	"github.com/okian/starchallenge/pkg/metrics"
)

// Service implements the API dependencies for the challenge system.
type Service struct {
	mu sync.RWMutex

	store       repository.Store
	scores      *scoring.Engine
	ranking     *ranking.Engine
	rewards     *rewards.Engine
	broker      *live.Broker
	coordinator *Coordinator
	queue       *queue.InMemoryQueue
	pool        *worker.Pool
	deduper     dedupe.Deduper
	processor   *rewardProcessor

	workerCount          int
	queueSize            int
	dedupeSize           int
	starDivisor          float64
	winnerCount          int
	idempotentWinners    bool
	idempotentRewards    bool
	recomputeConcurrency int
	snapshotDelay        time.Duration
	statusSyncInterval   time.Duration
	now                  func() time.Time

	started  bool
	stopSync context.CancelFunc
	syncDone chan struct{}

	logger logger.Logger
}

// New builds every component over store. Nothing runs until Start.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{store: store}
	defaults(s)
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	s.scores = scoring.NewEngine(store,
		scoring.WithLocker(keylock.New()),
		scoring.WithRecomputeConcurrency(s.recomputeConcurrency),
	)
	s.ranking = ranking.NewEngine(store,
		ranking.WithIdempotentWinners(s.idempotentWinners),
		ranking.WithDefaultWinnerCount(s.winnerCount),
		ranking.WithClock(s.now),
	)
	s.rewards = rewards.NewEngine(store,
		rewards.WithStarDivisor(s.starDivisor),
		rewards.WithIdempotentRewards(s.idempotentRewards),
		rewards.WithClock(s.now),
	)
	s.broker = live.NewBroker(s.ranking,
		live.WithSnapshotDelay(s.snapshotDelay),
		live.WithClock(s.now),
	)
	s.coordinator = NewCoordinator(s.scores, s.broker, nil)

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.processor = &rewardProcessor{
		rewards: s.rewards,
		deduper: s.deduper,
		log:     logger.Named("reward-pipeline"),
	}
	s.pool = worker.NewPool(s.workerCount, s.queue, s.processor)
	return s
}

// Start launches the reward workers and the challenge status sync.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting challenge service...")

	s.pool.Start(context.WithoutCancel(ctx))

	if s.statusSyncInterval > 0 {
		syncCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.stopSync = cancel
		s.syncDone = make(chan struct{})
		go s.runStatusSync(syncCtx)
	}

	s.started = true
	s.logger.Info(ctx, "challenge service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("statusSyncInterval", s.statusSyncInterval),
	)
	return nil
}

// Stop drains the reward queue, stops the status sync and closes every live
// connection. The store is owned by the caller and stays open.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping challenge service...")

	var errs []error
	if s.stopSync != nil {
		s.stopSync()
		<-s.syncDone
		s.stopSync = nil
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.broker.Close(); err != nil {
		errs = append(errs, err)
	}

	s.started = false
	s.logger.Info(ctx, "challenge service stopped",
		logger.Int64("processed", s.pool.Processed()),
		logger.Int64("failed", s.pool.Failed()),
	)
	return errors.Join(errs...)
}

func (s *Service) runStatusSync(ctx context.Context) {
	defer close(s.syncDone)

	ticker := time.NewTicker(s.statusSyncInterval)
	defer ticker.Stop()

	s.SyncStatuses(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncStatuses(ctx)
		}
	}
}

// SyncStatuses persists derived challenge status transitions once.
func (s *Service) SyncStatuses(ctx context.Context) int64 {
	moved, err := s.store.SyncChallengeStatuses(ctx, s.now())
	if err != nil {
		if ctx.Err() == nil {
			metrics.RecordErrorByComponent("status_sync", "store")
			s.logger.Error(ctx, "challenge status sync failed", logger.Error(err))
		}
		return 0
	}
	if moved > 0 {
		s.logger.Info(ctx, "challenge statuses updated", logger.Int64("challenges", moved))
	}
	return moved
}

// Broker exposes the live broker for the websocket handler.
func (s *Service) Broker() *live.Broker { return s.broker }

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// CreateUser registers a user.
func (s *Service) CreateUser(ctx context.Context, u *model.User) error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: user name is required", model.ErrInvalid)
	}
	return s.store.CreateUser(ctx, u)
}

// CreateChallenge registers a challenge. Its stored status is the effective
// status at creation time.
func (s *Service) CreateChallenge(ctx context.Context, c *model.Challenge) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.Status = c.EffectiveStatus(s.now())
	return s.store.CreateChallenge(ctx, c)
}

// GetChallenge returns a challenge with its status derived at the current time.
func (s *Service) GetChallenge(ctx context.Context, id string) (model.Challenge, error) {
	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		return model.Challenge{}, err
	}
	c.Status = c.EffectiveStatus(s.now())
	return c, nil
}

// CreateCriterion adds a weighted criterion to an existing challenge.
func (s *Service) CreateCriterion(ctx context.Context, c *model.Criterion) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if _, err := s.store.GetChallenge(ctx, c.ChallengeID); err != nil {
		return err
	}
	if c.Kind == "" {
		c.Kind = model.KindQuantitative
	}
	return s.store.CreateCriterion(ctx, c)
}

// JoinChallenge creates a participant for an existing user and challenge.
func (s *Service) JoinChallenge(ctx context.Context, p *model.Participant) error {
	if p.UserID == "" || p.ChallengeID == "" {
		return fmt.Errorf("%w: participant needs a user and a challenge", model.ErrInvalid)
	}
	if _, err := s.store.GetUser(ctx, p.UserID); err != nil {
		return err
	}
	if _, err := s.store.GetChallenge(ctx, p.ChallengeID); err != nil {
		return err
	}
	p.TotalScore = 0
	if p.ValidationStatus == "" {
		p.ValidationStatus = model.ValidationPending
	}
	return s.store.CreateParticipant(ctx, p)
}

// CreateTier registers a reward tier.
func (s *Service) CreateTier(ctx context.Context, t *model.Tier) error {
	if strings.TrimSpace(t.Name) == "" || t.MinStars < 0 {
		return fmt.Errorf("%w: tier needs a name and a non-negative threshold", model.ErrInvalid)
	}
	return s.store.CreateTier(ctx, t)
}

// ListTiers returns tiers ordered by threshold.
func (s *Service) ListTiers(ctx context.Context) ([]model.Tier, error) {
	return s.store.ListTiers(ctx)
}

// CreatePerformance persists a performance, propagates it to scores and live
// subscribers, then queues its star grant. A full queue grants inline.
func (s *Service) CreatePerformance(ctx context.Context, p *model.Performance) (scoring.Result, error) {
	if err := p.Validate(); err != nil {
		return scoring.Result{}, err
	}
	if _, err := s.store.GetParticipant(ctx, p.ParticipantID); err != nil {
		return scoring.Result{}, err
	}
	if err := s.store.CreatePerformance(ctx, p); err != nil {
		return scoring.Result{}, err
	}

	// The row is committed, so its stars are owed even if propagation fails.
	res, err := s.coordinator.OnPerformanceMutated(ctx, p.ParticipantID, model.ChangeCreate)
	s.enqueueReward(ctx, queue.Job{
		PerformanceID: p.ID,
		ParticipantID: p.ParticipantID,
		EnqueuedAt:    s.now(),
	})
	if err != nil {
		return scoring.Result{}, fmt.Errorf("performance %s saved but not propagated: %w", p.ID, err)
	}
	return res, nil
}

func (s *Service) enqueueReward(ctx context.Context, j queue.Job) {
	err := s.queue.Enqueue(ctx, j)
	if err == nil {
		return
	}
	if !errors.Is(err, queue.ErrFull) && !errors.Is(err, queue.ErrClosed) {
		s.logger.Error(ctx, "reward job not queued", logger.String("performanceId", j.PerformanceID), logger.Error(err))
		return
	}
	s.logger.Warn(ctx, "reward queue unavailable, granting inline",
		logger.String("performanceId", j.PerformanceID),
		logger.Error(err),
	)
	if err := s.processor.Process(ctx, j); err != nil {
		metrics.RecordWorkerError()
		s.logger.Error(ctx, "inline reward grant failed", logger.String("performanceId", j.PerformanceID), logger.Error(err))
	}
}

// GetPerformance returns one performance.
func (s *Service) GetPerformance(ctx context.Context, id string) (model.Performance, error) {
	return s.store.GetPerformance(ctx, id)
}

// UpdatePerformance persists new value, criterion, rank and details for an
// existing performance. The owning participant cannot change.
func (s *Service) UpdatePerformance(ctx context.Context, p *model.Performance) (model.Performance, error) {
	current, err := s.store.GetPerformance(ctx, p.ID)
	if err != nil {
		return model.Performance{}, err
	}
	p.ParticipantID = current.ParticipantID
	if err := p.Validate(); err != nil {
		return model.Performance{}, err
	}
	if err := s.store.UpdatePerformance(ctx, p); err != nil {
		return model.Performance{}, err
	}
	if _, err := s.coordinator.OnPerformanceMutated(ctx, p.ParticipantID, model.ChangeUpdate); err != nil {
		return model.Performance{}, err
	}
	return s.store.GetPerformance(ctx, p.ID)
}

// DeletePerformance removes a performance and propagates the new score.
// Stars already granted for it stay in the ledger.
func (s *Service) DeletePerformance(ctx context.Context, id string) error {
	deleted, err := s.store.DeletePerformance(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.coordinator.OnPerformanceMutated(ctx, deleted.ParticipantID, model.ChangeDelete)
	return err
}

// Leaderboard returns the ranked standings of a challenge. With refresh set,
// every score is recomputed first.
func (s *Service) Leaderboard(ctx context.Context, challengeID string, refresh bool) ([]types.LeaderboardEntry, error) {
	if _, err := s.store.GetChallenge(ctx, challengeID); err != nil {
		return nil, err
	}
	if refresh {
		if _, err := s.Recompute(ctx, challengeID); err != nil {
			return nil, err
		}
	}
	return s.ranking.ComputeLeaderboard(ctx, challengeID)
}

// Statistics returns the score statistics of a challenge.
func (s *Service) Statistics(ctx context.Context, challengeID string) (types.Statistics, error) {
	if _, err := s.store.GetChallenge(ctx, challengeID); err != nil {
		return types.Statistics{}, err
	}
	return s.ranking.ComputeStatistics(ctx, challengeID)
}

// Recompute recomputes every participant score of a challenge and publishes
// the result to subscribers.
func (s *Service) Recompute(ctx context.Context, challengeID string) (int, error) {
	n, err := s.scores.RecomputeChallenge(ctx, challengeID)
	if err != nil {
		return n, err
	}
	s.broker.Publish(ctx, challengeID)
	return n, nil
}

// SelectWinners finalizes the top count participants. Zero uses the default count.
func (s *Service) SelectWinners(ctx context.Context, challengeID string, count int) ([]model.Winner, error) {
	if _, err := s.store.GetChallenge(ctx, challengeID); err != nil {
		return nil, err
	}
	return s.ranking.SelectWinners(ctx, challengeID, count)
}

// ListWinners returns the persisted winners of a challenge.
func (s *Service) ListWinners(ctx context.Context, challengeID string) ([]model.Winner, error) {
	return s.ranking.ListWinners(ctx, challengeID)
}

// GrantStars grants the stars of a performance unless they were already
// granted, then unlocks the tiers the new balance reaches.
func (s *Service) GrantStars(ctx context.Context, performanceID string) (rewards.Grant, error) {
	return s.processor.grant(ctx, performanceID)
}

// EvaluateRewards unlocks every tier the user's balance reaches.
func (s *Service) EvaluateRewards(ctx context.Context, userID string) ([]model.Reward, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.rewards.EvaluateTierUnlocks(ctx, userID)
}

// ListRewards returns the rewards of a user.
func (s *Service) ListRewards(ctx context.Context, userID string) ([]model.Reward, error) {
	return s.store.ListRewardsByUser(ctx, userID)
}

// Progress reports the user's tier progress.
func (s *Service) Progress(ctx context.Context, userID string) (types.TierProgress, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return types.TierProgress{}, err
	}
	return s.rewards.Progress(ctx, userID)
}

// LiveStats returns the broker connection statistics.
func (s *Service) LiveStats() types.ConnectionStats {
	return s.broker.Stats()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	queueLen := s.queue.Len(ctx)
	conns := s.broker.Stats()

	metrics.UpdateQueueSize(queueLen)

	return map[string]any{
		"started":          s.started,
		"workerCount":      s.pool.Size(),
		"queueSize":        s.queueSize,
		"queueLength":      queueLen,
		"dedupeSize":       s.deduper.Size(),
		"jobsProcessed":    s.pool.Processed(),
		"jobsFailed":       s.pool.Failed(),
		"connectedClients": conns.ConnectedClients,
	}
}
