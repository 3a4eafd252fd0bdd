package model_test

import (
	"errors"
	"math"
	"testing"
	"time"

	model "github.com/okian/starchallenge/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
	"gorm.io/datatypes"
)

func strPtr(s string) *string { return &s }

func TestChallengeStatus(t *testing.T) {
	convey.Convey("Given a challenge running from day 1 to day 10", t, func() {
		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		end := start.Add(9 * 24 * time.Hour)
		c := model.Challenge{ID: "c1", Name: "Spring run", StartDate: start, EndDate: end, Status: model.StatusPending}

		convey.Convey("When now is before the start", func() {
			convey.So(c.EffectiveStatus(start.Add(-time.Second)), convey.ShouldEqual, model.StatusPending)
		})

		convey.Convey("When now equals the start", func() {
			convey.So(c.EffectiveStatus(start), convey.ShouldEqual, model.StatusActive)
		})

		convey.Convey("When now equals the end", func() {
			convey.So(c.EffectiveStatus(end), convey.ShouldEqual, model.StatusActive)
		})

		convey.Convey("When now is past the end", func() {
			convey.So(c.EffectiveStatus(end.Add(time.Nanosecond)), convey.ShouldEqual, model.StatusFinished)
		})

		convey.Convey("When the stored status is already finished", func() {
			c.Status = model.StatusFinished
			convey.So(c.EffectiveStatus(start), convey.ShouldEqual, model.StatusFinished)
		})

		convey.Convey("When the stored status is empty", func() {
			c.Status = ""
			convey.So(c.EffectiveStatus(start.Add(-time.Hour)), convey.ShouldEqual, model.StatusPending)
		})

		convey.Convey("When the end precedes the start", func() {
			c.EndDate = start.Add(-time.Hour)
			err := c.Validate()
			convey.So(errors.Is(err, model.ErrInvalid), convey.ShouldBeTrue)
		})

		convey.Convey("When the dates are ordered", func() {
			convey.So(c.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestCriterionValidate(t *testing.T) {
	convey.Convey("Given criteria", t, func() {
		ok := model.Criterion{ID: "k1", Name: "Speed", Weight: 1.5, ChallengeID: "c1"}
		convey.So(ok.Validate(), convey.ShouldBeNil)

		zero := ok
		zero.Weight = 0
		convey.So(errors.Is(zero.Validate(), model.ErrInvalid), convey.ShouldBeTrue)

		orphan := ok
		orphan.ChallengeID = ""
		convey.So(errors.Is(orphan.Validate(), model.ErrInvalid), convey.ShouldBeTrue)

		huge := ok
		huge.Weight = 1e10
		convey.So(errors.Is(huge.Validate(), model.ErrInvalid), convey.ShouldBeTrue)

		inf := ok
		inf.Weight = math.Inf(1)
		convey.So(errors.Is(inf.Validate(), model.ErrInvalid), convey.ShouldBeTrue)

		nan := ok
		nan.Weight = math.NaN()
		convey.So(errors.Is(nan.Validate(), model.ErrInvalid), convey.ShouldBeTrue)

		qualitative := ok
		qualitative.Kind = model.KindQualitative
		convey.So(qualitative.Validate(), convey.ShouldBeNil)

		unknown := ok
		unknown.Kind = "vibes"
		convey.So(errors.Is(unknown.Validate(), model.ErrInvalid), convey.ShouldBeTrue)
	})
}

func TestPerformanceValidate(t *testing.T) {
	convey.Convey("Given performance values", t, func() {
		base := model.Performance{ID: "p1", ParticipantID: "x"}

		for _, v := range []float64{0, -12.5, model.MaxPerformanceValue, -model.MaxPerformanceValue} {
			p := base
			p.Value = v
			convey.So(p.Validate(), convey.ShouldBeNil)
		}

		for _, v := range []float64{1e20, -1e300, math.Inf(1), math.Inf(-1), math.NaN()} {
			p := base
			p.Value = v
			convey.So(errors.Is(p.Validate(), model.ErrInvalid), convey.ShouldBeTrue)
		}

		orphan := base
		orphan.ParticipantID = ""
		convey.So(errors.Is(orphan.Validate(), model.ErrInvalid), convey.ShouldBeTrue)
	})
}

func TestPerformanceCriterionRef(t *testing.T) {
	convey.Convey("Given performances with different criterion encodings", t, func() {
		convey.Convey("When the explicit field is set", func() {
			p := model.Performance{CriterionID: strPtr("k1"), Details: datatypes.JSON(`{"critereId":"k2"}`)}
			ref := p.CriterionRef()

			convey.Convey("Then the explicit field wins", func() {
				convey.So(ref.Source, convey.ShouldEqual, model.RefExplicit)
				convey.So(ref.ID, convey.ShouldEqual, "k1")
				convey.So(ref.Resolved(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When only the detail payload carries it", func() {
			p := model.Performance{CriterionID: strPtr("  "), Details: datatypes.JSON(`{"critereId":"k2","note":"x"}`)}
			ref := p.CriterionRef()

			convey.Convey("Then it falls back to the payload", func() {
				convey.So(ref.Source, convey.ShouldEqual, model.RefDetails)
				convey.So(ref.ID, convey.ShouldEqual, "k2")
				convey.So(ref.Source.String(), convey.ShouldEqual, "details")
			})
		})

		convey.Convey("When the payload is a double-encoded string with a numeric id", func() {
			p := model.Performance{Details: datatypes.JSON(`"{\"critereId\": 42}"`)}
			ref := p.CriterionRef()
			convey.So(ref.Source, convey.ShouldEqual, model.RefDetails)
			convey.So(ref.ID, convey.ShouldEqual, "42")
		})

		convey.Convey("When the payload is malformed", func() {
			p := model.Performance{Details: datatypes.JSON(`{critereId:`)}
			ref := p.CriterionRef()

			convey.Convey("Then it is unresolved without panicking", func() {
				convey.So(ref.Resolved(), convey.ShouldBeFalse)
				convey.So(ref.Source.String(), convey.ShouldEqual, "unresolved")
			})
		})

		convey.Convey("When there is nothing at all", func() {
			convey.So(model.Performance{}.CriterionRef().Resolved(), convey.ShouldBeFalse)
		})
	})
}

func TestChangeKind(t *testing.T) {
	convey.Convey("Given change kinds", t, func() {
		convey.So(model.ChangeCreate.Valid(), convey.ShouldBeTrue)
		convey.So(model.ChangeDelete.Valid(), convey.ShouldBeTrue)
		convey.So(model.ChangeKind("rename").Valid(), convey.ShouldBeFalse)
		convey.So(len(model.All()), convey.ShouldEqual, 9)
	})
}
