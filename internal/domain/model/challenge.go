// Package model contains domain models passed between layers and persisted by the repository.
package model

import (
	"fmt"
	"strings"
	"time"
)

// ChallengeStatus is the lifecycle state of a challenge.
type ChallengeStatus string

const (
	StatusPending  ChallengeStatus = "pending"
	StatusActive   ChallengeStatus = "active"
	StatusFinished ChallengeStatus = "finished"
)

// Challenge is a time-boxed competition.
type Challenge struct {
	ID        string          `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Name      string          `gorm:"column:name;not null" json:"name"`
	StartDate time.Time       `gorm:"column:start_date;not null" json:"startDate"`
	EndDate   time.Time       `gorm:"column:end_date;not null" json:"endDate"`
	Status    ChallengeStatus `gorm:"column:status;type:varchar(16);not null;default:pending;index" json:"status"`
	CreatorID string          `gorm:"column:creator_id;type:varchar(36)" json:"creatorId"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (Challenge) TableName() string { return "challenges" }

// Validate enforces start <= end and a non-empty name.
func (c Challenge) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: challenge name is required", ErrInvalid)
	}
	if c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("%w: challenge %s ends before it starts", ErrInvalid, c.ID)
	}
	return nil
}

// EffectiveStatus derives the status at now: pending becomes active once
// now >= start, and active becomes finished once now > end.
func (c Challenge) EffectiveStatus(now time.Time) ChallengeStatus {
	status := c.Status
	if status == "" {
		status = StatusPending
	}
	if status == StatusPending && !now.Before(c.StartDate) {
		status = StatusActive
	}
	if status == StatusActive && now.After(c.EndDate) {
		status = StatusFinished
	}
	return status
}
