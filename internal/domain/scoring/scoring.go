// Package scoring computes and persists participant total scores.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/starchallenge/internal/domain/keylock"
	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/pkg/logger"
	"github.com/okian/starchallenge/pkg/metrics"
)

// Store is the subset of storage the engine reads and writes.
type Store interface {
	GetParticipant(ctx context.Context, id string) (model.Participant, error)
	ListParticipantsByChallenge(ctx context.Context, challengeID string) ([]model.Participant, error)
	ListPerformancesByParticipant(ctx context.Context, participantID string) ([]model.Performance, error)
	ListCriteriaByChallenge(ctx context.Context, challengeID string) ([]model.Criterion, error)
	UpdateParticipantScore(ctx context.Context, participantID string, score float64) error
}

// Result describes one computation.
type Result struct {
	ParticipantID string
	ChallengeID   string
	Total         float64
	// Scored counts performances that contributed to Total.
	Scored int
	// Unresolved counts performances without any criterion reference.
	Unresolved int
	// MissingCriteria lists referenced criterion ids unknown to the challenge, deduplicated and sorted.
	MissingCriteria []string
}

// Engine computes weighted totals.
type Engine struct {
	store       Store
	log         logger.Logger
	locks       *keylock.Locker
	concurrency int
}

// NewEngine creates a scoring engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		log:         logger.Named("scoring"),
		locks:       keylock.New(),
		concurrency: defaultRecomputeConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeTotalScore recomputes and persists the total score of a participant.
func (e *Engine) ComputeTotalScore(ctx context.Context, participantID string) (float64, error) {
	res, err := e.Compute(ctx, participantID)
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

// Compute is ComputeTotalScore with diagnostics.
func (e *Engine) Compute(ctx context.Context, participantID string) (Result, error) {
	if participantID == "" {
		return Result{}, fmt.Errorf("%w: empty participant id", ErrInvalidInput)
	}
	unlock := e.locks.Lock(participantID)
	defer unlock()

	start := time.Now()
	res, err := e.compute(ctx, participantID)
	if err != nil {
		metrics.RecordScoreError()
		return Result{}, err
	}
	metrics.RecordScoreRecomputation(float64(time.Since(start).Microseconds()) / 1000)

	if n := len(res.MissingCriteria); n > 0 {
		metrics.RecordMissingCriteria(n)
		e.log.Warn(ctx, "performances reference unknown criteria",
			logger.String("participantId", participantID),
			logger.String("challengeId", res.ChallengeID),
			logger.Any("missingCriteria", res.MissingCriteria),
		)
	}
	if res.Unresolved > 0 {
		e.log.Debug(ctx, "performances without criterion skipped",
			logger.String("participantId", participantID),
			logger.Int("count", res.Unresolved),
		)
	}
	return res, nil
}

func (e *Engine) compute(ctx context.Context, participantID string) (Result, error) {
	participant, err := e.store.GetParticipant(ctx, participantID)
	if err != nil {
		return Result{}, fmt.Errorf("compute total score: %w", err)
	}
	performances, err := e.store.ListPerformancesByParticipant(ctx, participantID)
	if err != nil {
		return Result{}, fmt.Errorf("compute total score: %w", err)
	}
	criteria, err := e.store.ListCriteriaByChallenge(ctx, participant.ChallengeID)
	if err != nil {
		return Result{}, fmt.Errorf("compute total score: %w", err)
	}

	res := Total(performances, criteria)
	res.ParticipantID = participantID
	res.ChallengeID = participant.ChallengeID
	if math.IsInf(res.Total, 0) || math.IsNaN(res.Total) {
		return Result{}, fmt.Errorf("compute total score of %s: %w", participantID, ErrNonFiniteTotal)
	}

	if err := e.store.UpdateParticipantScore(ctx, participantID, res.Total); err != nil {
		return Result{}, fmt.Errorf("persist total score: %w", err)
	}
	return res, nil
}

// Total sums value*weight over performances whose criterion belongs to criteria.
// It does not touch storage.
func Total(performances []model.Performance, criteria []model.Criterion) Result {
	weights := make(map[string]float64, len(criteria))
	for _, c := range criteria {
		weights[c.ID] = c.Weight
	}

	var res Result
	missing := make(map[string]struct{})
	for _, p := range performances {
		ref := p.CriterionRef()
		if !ref.Resolved() {
			res.Unresolved++
			continue
		}
		w, ok := weights[ref.ID]
		if !ok {
			missing[ref.ID] = struct{}{}
			continue
		}
		res.Total += p.Value * w
		res.Scored++
	}

	if len(missing) > 0 {
		res.MissingCriteria = make([]string, 0, len(missing))
		for id := range missing {
			res.MissingCriteria = append(res.MissingCriteria, id)
		}
		sort.Strings(res.MissingCriteria)
	}
	return res
}

// RecomputeChallenge rescores every participant of a challenge. The first
// failure cancels the rest and is returned.
func (e *Engine) RecomputeChallenge(ctx context.Context, challengeID string) (int, error) {
	if challengeID == "" {
		return 0, fmt.Errorf("%w: empty challenge id", ErrInvalidInput)
	}
	participants, err := e.store.ListParticipantsByChallenge(ctx, challengeID)
	if err != nil {
		return 0, fmt.Errorf("recompute challenge: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, p := range participants {
		id := p.ID
		g.Go(func() error {
			_, err := e.Compute(gctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("recompute challenge %s: %w", challengeID, err)
	}

	e.log.Info(ctx, "challenge recomputed",
		logger.String("challengeId", challengeID),
		logger.Int("participants", len(participants)),
	)
	return len(participants), nil
}
