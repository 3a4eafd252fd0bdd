package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/pkg/logger"
)

// GormStore implements Store on any gorm dialect.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
	log logger.Logger
}

var _ Store = (*GormStore)(nil)

// NewGormStore wraps an open gorm handle. Migrations are the caller's job.
func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	s := &GormStore{
		db:  db,
		now: time.Now,
		log: logger.Named("repository"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle for seeding tools.
func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) clock() time.Time { return s.now().UTC() }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (s *GormStore) CreateUser(ctx context.Context, u *model.User) error {
	ensureID(&u.ID)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.clock()
	}
	return wrap("create user", s.db.WithContext(ctx).Create(u).Error)
}

func (s *GormStore) GetUser(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	return u, wrap("get user "+id, err)
}

func (s *GormStore) CreateChallenge(ctx context.Context, c *model.Challenge) error {
	if err := c.Validate(); err != nil {
		return err
	}
	ensureID(&c.ID)
	if c.Status == "" {
		c.Status = model.StatusPending
	}
	c.StartDate = c.StartDate.UTC()
	c.EndDate = c.EndDate.UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock()
	}
	return wrap("create challenge", s.db.WithContext(ctx).Create(c).Error)
}

func (s *GormStore) GetChallenge(ctx context.Context, id string) (model.Challenge, error) {
	var c model.Challenge
	err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error
	return c, wrap("get challenge "+id, err)
}

// SyncChallengeStatuses moves pending challenges whose start has passed to
// active, then active challenges whose end has passed to finished.
func (s *GormStore) SyncChallengeStatuses(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	var moved int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Challenge{}).
			Where("status = ? AND start_date <= ?", model.StatusPending, now).
			UpdateColumn("status", model.StatusActive)
		if res.Error != nil {
			return res.Error
		}
		moved += res.RowsAffected

		res = tx.Model(&model.Challenge{}).
			Where("status = ? AND end_date < ?", model.StatusActive, now).
			UpdateColumn("status", model.StatusFinished)
		if res.Error != nil {
			return res.Error
		}
		moved += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, wrap("sync challenge statuses", err)
	}
	return moved, nil
}

func (s *GormStore) CreateCriterion(ctx context.Context, c *model.Criterion) error {
	if c.Kind == "" {
		c.Kind = model.KindQuantitative
	}
	if err := c.Validate(); err != nil {
		return err
	}
	ensureID(&c.ID)
	return wrap("create criterion", s.db.WithContext(ctx).Create(c).Error)
}

func (s *GormStore) ListCriteriaByChallenge(ctx context.Context, challengeID string) ([]model.Criterion, error) {
	var out []model.Criterion
	err := s.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("id ASC").
		Find(&out).Error
	return out, wrap("list criteria", err)
}

func (s *GormStore) CreateParticipant(ctx context.Context, p *model.Participant) error {
	ensureID(&p.ID)
	if p.ValidationStatus == "" {
		p.ValidationStatus = model.ValidationPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.clock()
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return wrap("create participant", s.db.WithContext(ctx).Create(p).Error)
}

func (s *GormStore) GetParticipant(ctx context.Context, id string) (model.Participant, error) {
	var p model.Participant
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	return p, wrap("get participant "+id, err)
}

func (s *GormStore) ListParticipantsByChallenge(ctx context.Context, challengeID string) ([]model.Participant, error) {
	var out []model.Participant
	err := s.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("total_score DESC, created_at ASC, id ASC").
		Find(&out).Error
	return out, wrap("list participants", err)
}

// ListStandings returns participants of a challenge with their users. A
// participant whose user row is missing gets a zero User carrying only the id.
func (s *GormStore) ListStandings(ctx context.Context, challengeID string) ([]Standing, error) {
	participants, err := s.ListParticipantsByChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return []Standing{}, nil
	}

	ids := make([]string, 0, len(participants))
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		ids = append(ids, p.UserID)
	}

	var users []model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, wrap("list standing users", err)
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]Standing, 0, len(participants))
	for _, p := range participants {
		u, ok := byID[p.UserID]
		if !ok {
			u = model.User{ID: p.UserID}
		}
		out = append(out, Standing{Participant: p, User: u})
	}
	return out, nil
}

func (s *GormStore) UpdateParticipantScore(ctx context.Context, participantID string, score float64) error {
	res := s.db.WithContext(ctx).
		Model(&model.Participant{}).
		Where("id = ?", participantID).
		UpdateColumn("total_score", score)
	if res.Error != nil {
		return wrap("update participant score", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update participant score %s: %w", participantID, ErrNotFound)
	}
	return nil
}

func (s *GormStore) CreatePerformance(ctx context.Context, p *model.Performance) error {
	if err := p.Validate(); err != nil {
		return err
	}
	ensureID(&p.ID)
	return wrap("create performance", s.db.WithContext(ctx).Create(p).Error)
}

func (s *GormStore) GetPerformance(ctx context.Context, id string) (model.Performance, error) {
	var p model.Performance
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	return p, wrap("get performance "+id, err)
}

// UpdatePerformance rewrites the measured fields. The owning participant is immutable.
func (s *GormStore) UpdatePerformance(ctx context.Context, p *model.Performance) error {
	res := s.db.WithContext(ctx).
		Model(&model.Performance{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"criterion_id": p.CriterionID,
			"value":        p.Value,
			"rank":         p.Rank,
			"details":      p.Details,
		})
	if res.Error != nil {
		return wrap("update performance", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update performance %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

// DeletePerformance removes a performance and returns the deleted row.
func (s *GormStore) DeletePerformance(ctx context.Context, id string) (model.Performance, error) {
	var p model.Performance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Performance{}, "id = ?", id).Error
	})
	if err != nil {
		return model.Performance{}, wrap("delete performance "+id, err)
	}
	return p, nil
}

func (s *GormStore) ListPerformancesByParticipant(ctx context.Context, participantID string) ([]model.Performance, error) {
	var out []model.Performance
	err := s.db.WithContext(ctx).
		Where("participant_id = ?", participantID).
		Order("id ASC").
		Find(&out).Error
	return out, wrap("list performances", err)
}

func (s *GormStore) AddStar(ctx context.Context, st *model.Star) error {
	ensureID(&st.ID)
	if st.AwardedAt.IsZero() {
		st.AwardedAt = s.clock()
	}
	return wrap("add star", s.db.WithContext(ctx).Create(st).Error)
}

// HasStarForPerformance reports whether the ledger already credits a performance.
func (s *GormStore) HasStarForPerformance(ctx context.Context, performanceID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.Star{}).
		Where("performance_id = ?", performanceID).
		Count(&n).Error
	if err != nil {
		return false, wrap("has star", err)
	}
	return n > 0, nil
}

// SumStars returns the star balance of a user.
func (s *GormStore) SumStars(ctx context.Context, userID string) (int, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&model.Star{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(total), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, wrap("sum stars", err)
	}
	return int(total), nil
}

func (s *GormStore) CreateTier(ctx context.Context, t *model.Tier) error {
	ensureID(&t.ID)
	return wrap("create tier", s.db.WithContext(ctx).Create(t).Error)
}

// ListTiers returns all tiers by ascending threshold.
func (s *GormStore) ListTiers(ctx context.Context) ([]model.Tier, error) {
	var out []model.Tier
	err := s.db.WithContext(ctx).Order("min_stars ASC, id ASC").Find(&out).Error
	return out, wrap("list tiers", err)
}

func (s *GormStore) AddReward(ctx context.Context, r *model.Reward) error {
	ensureID(&r.ID)
	if r.AwardedAt.IsZero() {
		r.AwardedAt = s.clock()
	}
	return wrap("add reward", s.db.WithContext(ctx).Create(r).Error)
}

func (s *GormStore) ListRewardsByUser(ctx context.Context, userID string) ([]model.Reward, error) {
	var out []model.Reward
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("awarded_at ASC, id ASC").
		Find(&out).Error
	return out, wrap("list rewards", err)
}

func (s *GormStore) SaveWinners(ctx context.Context, challengeID string, winners []model.Winner, keepExisting bool) ([]model.Winner, error) {
	var saved []model.Winner
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if keepExisting {
			var existing []model.Winner
			if err := tx.Where("challenge_id = ?", challengeID).Order("rank ASC, id ASC").Find(&existing).Error; err != nil {
				return err
			}
			if len(existing) > 0 {
				saved = existing
				return nil
			}
		}
		if len(winners) == 0 {
			saved = []model.Winner{}
			return nil
		}
		now := s.clock()
		for i := range winners {
			ensureID(&winners[i].ID)
			winners[i].ChallengeID = challengeID
			if winners[i].CreatedAt.IsZero() {
				winners[i].CreatedAt = now
			}
		}
		if err := tx.Create(&winners).Error; err != nil {
			return err
		}
		saved = winners
		return nil
	})
	if err != nil {
		return nil, wrap("save winners", err)
	}
	return saved, nil
}

func (s *GormStore) ListWinners(ctx context.Context, challengeID string) ([]model.Winner, error) {
	var out []model.Winner
	err := s.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("rank ASC, created_at ASC, id ASC").
		Find(&out).Error
	return out, wrap("list winners", err)
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrap("ping", err)
	}
	return wrap("ping", sqlDB.PingContext(ctx))
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrap("close", err)
	}
	return wrap("close", sqlDB.Close())
}
