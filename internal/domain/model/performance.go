package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gorm.io/datatypes"
)

// detailCriterionKeys are the keys looked up in the detail payload, in order.
var detailCriterionKeys = []string{"critereId", "criterionId", "criterion_id"}

// Performance is one measured value of a participant for a criterion.
type Performance struct {
	ID            string         `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	ParticipantID string         `gorm:"column:participant_id;type:varchar(36);not null;index" json:"participantId"`
	CriterionID   *string        `gorm:"column:criterion_id;type:varchar(36)" json:"criterionId,omitempty"`
	Value         float64        `gorm:"column:value;not null" json:"value"`
	Rank          int            `gorm:"column:rank" json:"rank"`
	Details       datatypes.JSON `gorm:"column:details" json:"details,omitempty"`
}

func (Performance) TableName() string { return "performances" }

// MaxPerformanceValue bounds the magnitude of a performance value.
const MaxPerformanceValue = 1e9

// Validate requires an owning participant and a finite value within
// ±MaxPerformanceValue.
func (p Performance) Validate() error {
	switch {
	case p.ParticipantID == "":
		return fmt.Errorf("%w: performance %s has no participant", ErrInvalid, p.ID)
	case math.IsNaN(p.Value) || math.IsInf(p.Value, 0):
		return fmt.Errorf("%w: performance %s value is not finite", ErrInvalid, p.ID)
	case math.Abs(p.Value) > MaxPerformanceValue:
		return fmt.Errorf("%w: performance %s value exceeds %g", ErrInvalid, p.ID, MaxPerformanceValue)
	}
	return nil
}

// RefSource tells where a criterion reference came from.
type RefSource int

const (
	// RefUnresolved means no criterion could be found.
	RefUnresolved RefSource = iota
	// RefExplicit is the structured criterion_id column.
	RefExplicit
	// RefDetails was parsed out of the opaque detail payload.
	RefDetails
)

func (s RefSource) String() string {
	switch s {
	case RefExplicit:
		return "explicit"
	case RefDetails:
		return "details"
	default:
		return "unresolved"
	}
}

// CriterionRef is the resolved criterion reference of a performance.
type CriterionRef struct {
	Source RefSource
	ID     string
}

// Resolved reports whether a criterion id was found.
func (r CriterionRef) Resolved() bool { return r.Source != RefUnresolved && r.ID != "" }

// CriterionRef resolves the criterion of a performance, preferring the
// structured field. A malformed payload resolves to RefUnresolved.
func (p Performance) CriterionRef() CriterionRef {
	if p.CriterionID != nil {
		if id := strings.TrimSpace(*p.CriterionID); id != "" {
			return CriterionRef{Source: RefExplicit, ID: id}
		}
	}
	if id, ok := criterionFromDetails(p.Details); ok {
		return CriterionRef{Source: RefDetails, ID: id}
	}
	return CriterionRef{Source: RefUnresolved}
}

func criterionFromDetails(raw []byte) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		// Some writers double-encode the payload as a JSON string.
		var inner string
		if json.Unmarshal(raw, &inner) != nil || json.Unmarshal([]byte(inner), &payload) != nil {
			return "", false
		}
	}
	for _, key := range detailCriterionKeys {
		switch v := payload[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s, true
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
	}
	return "", false
}
