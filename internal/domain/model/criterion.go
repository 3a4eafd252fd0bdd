package model

import (
	"fmt"
	"math"
	"strings"
)

// CriterionKind tags how a criterion is measured.
type CriterionKind string

const (
	KindQuantitative CriterionKind = "quantitative"
	KindQualitative  CriterionKind = "qualitative"
)

// Criterion is a weighted scoring dimension of a challenge.
type Criterion struct {
	ID          string        `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Name        string        `gorm:"column:name;not null" json:"name"`
	Weight      float64       `gorm:"column:weight;not null" json:"weight"`
	ChallengeID string        `gorm:"column:challenge_id;type:varchar(36);not null;index" json:"challengeId"`
	Kind        CriterionKind `gorm:"column:kind;type:varchar(16);not null;default:quantitative" json:"kind"`
}

func (Criterion) TableName() string { return "criteria" }

// MaxCriterionWeight bounds criterion weights.
const MaxCriterionWeight = 1e6

// Valid reports whether k is a known kind. The empty kind is not valid.
func (k CriterionKind) Valid() bool {
	return k == KindQuantitative || k == KindQualitative
}

// Validate requires a name, an owning challenge, a positive finite weight up
// to MaxCriterionWeight and, when set, a known kind.
func (c Criterion) Validate() error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return fmt.Errorf("%w: criterion name is required", ErrInvalid)
	case c.ChallengeID == "":
		return fmt.Errorf("%w: criterion %s has no challenge", ErrInvalid, c.ID)
	case !(c.Weight > 0) || math.IsInf(c.Weight, 0):
		return fmt.Errorf("%w: criterion %s weight must be positive", ErrInvalid, c.ID)
	case c.Weight > MaxCriterionWeight:
		return fmt.Errorf("%w: criterion %s weight exceeds %g", ErrInvalid, c.ID, MaxCriterionWeight)
	case c.Kind != "" && !c.Kind.Valid():
		return fmt.Errorf("%w: criterion %s has unknown kind %q", ErrInvalid, c.ID, c.Kind)
	}
	return nil
}
