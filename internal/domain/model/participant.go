package model

import "time"

// Validation statuses used by the participant surface.
const (
	ValidationPending   = "pending"
	ValidationValidated = "validated"
)

// User is the person behind one or more participations.
type User struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Email     string    `gorm:"column:email;uniqueIndex" json:"email"`
	Role      string    `gorm:"column:role;type:varchar(32);default:participant" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (User) TableName() string { return "users" }

// Participant links a user to a challenge and caches the computed total score.
// TotalScore is written only by the scoring engine.
type Participant struct {
	ID               string    `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	UserID           string    `gorm:"column:user_id;type:varchar(36);not null;index" json:"userId"`
	ChallengeID      string    `gorm:"column:challenge_id;type:varchar(36);not null;index" json:"challengeId"`
	TotalScore       float64   `gorm:"column:total_score;not null;default:0" json:"totalScore"`
	ValidationStatus string    `gorm:"column:validation_status;type:varchar(32);default:pending" json:"validationStatus"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (Participant) TableName() string { return "participants" }

// Standing is a participant joined with its user, as read for ranking.
type Standing struct {
	Participant Participant
	User        User
}
