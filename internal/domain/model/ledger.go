package model

import "time"

// ChangeKind is the kind of performance mutation.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Valid reports whether k is a known mutation kind.
func (k ChangeKind) Valid() bool {
	return k == ChangeCreate || k == ChangeUpdate || k == ChangeDelete
}

// Star is an append-only ledger entry. A user's balance is the sum of Total.
type Star struct {
	ID            string    `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Total         int       `gorm:"column:total;not null" json:"total"`
	AwardedAt     time.Time `gorm:"column:awarded_at;not null" json:"awardedAt"`
	Reason        string    `gorm:"column:reason" json:"reason"`
	UserID        string    `gorm:"column:user_id;type:varchar(36);not null;index" json:"userId"`
	PerformanceID *string   `gorm:"column:performance_id;type:varchar(36);uniqueIndex" json:"performanceId,omitempty"`
}

func (Star) TableName() string { return "stars" }

// Tier is a star threshold that unlocks a reward.
type Tier struct {
	ID          string `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Name        string `gorm:"column:name;not null" json:"name"`
	MinStars    int    `gorm:"column:min_stars;not null;index" json:"minStars"`
	Description string `gorm:"column:description" json:"description"`
}

func (Tier) TableName() string { return "tiers" }

// Reward is created when a user unlocks a tier.
type Reward struct {
	ID          string    `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Type        string    `gorm:"column:type;not null" json:"type"`
	Description string    `gorm:"column:description" json:"description"`
	AwardedAt   time.Time `gorm:"column:awarded_at;not null" json:"awardedAt"`
	TierID      string    `gorm:"column:tier_id;type:varchar(36);not null;index" json:"tierId"`
	UserID      string    `gorm:"column:user_id;type:varchar(36);index" json:"userId"`
}

func (Reward) TableName() string { return "rewards" }

// Winner records a finalized top position of a challenge.
type Winner struct {
	ID          string    `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	UserID      string    `gorm:"column:user_id;type:varchar(36);not null;index" json:"userId"`
	ChallengeID string    `gorm:"column:challenge_id;type:varchar(36);not null;index" json:"challengeId"`
	Rank        int       `gorm:"column:rank;not null" json:"rank"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (Winner) TableName() string { return "winners" }

// RewardJob flows through the reward queue after a performance is created.
type RewardJob struct {
	PerformanceID string
	ParticipantID string
	EnqueuedAt    time.Time
}

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&User{}, &Challenge{}, &Criterion{}, &Participant{}, &Performance{},
		&Star{}, &Tier{}, &Reward{}, &Winner{},
	}
}
