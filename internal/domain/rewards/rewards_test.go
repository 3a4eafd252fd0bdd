package rewards_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/starchallenge/internal/adapters/repository"
	"github.com/okian/starchallenge/internal/domain/model"
	rewards "github.com/okian/starchallenge/internal/domain/rewards"
	"github.com/okian/starchallenge/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestStarsFor(t *testing.T) {
	convey.Convey("Given the star conversion", t, func() {
		convey.So(rewards.StarsFor(47, 10), convey.ShouldEqual, 4)
		convey.So(rewards.StarsFor(9.99, 10), convey.ShouldEqual, 0)
		convey.So(rewards.StarsFor(100, 10), convey.ShouldEqual, 10)
		convey.So(rewards.StarsFor(-15, 10), convey.ShouldEqual, 0)
		convey.So(rewards.StarsFor(30, 0), convey.ShouldEqual, 3)

		convey.Convey("When the value is huge or not a number", func() {
			convey.So(rewards.StarsFor(1e20, 10), convey.ShouldEqual, rewards.MaxStarsPerGrant)
			convey.So(rewards.StarsFor(1e300, 10), convey.ShouldEqual, rewards.MaxStarsPerGrant)
			convey.So(rewards.StarsFor(math.Inf(1), 10), convey.ShouldEqual, rewards.MaxStarsPerGrant)
			convey.So(rewards.StarsFor(math.NaN(), 10), convey.ShouldEqual, 0)
		})
	})
}

func TestProgressFor(t *testing.T) {
	tiers := []model.Tier{
		{ID: "t0", Name: "Bronze", MinStars: 0},
		{ID: "t10", Name: "Silver", MinStars: 10},
		{ID: "t20", Name: "Gold", MinStars: 20},
		{ID: "t30", Name: "Platinum", MinStars: 30},
	}

	convey.Convey("Given a ladder [0,10,20,30]", t, func() {
		convey.Convey("When the balance is 25", func() {
			p := rewards.ProgressFor(25, tiers)
			convey.So(p.Current.Name, convey.ShouldEqual, "Gold")
			convey.So(p.Next.Name, convey.ShouldEqual, "Platinum")
			convey.So(p.Progress, convey.ShouldEqual, 50)
			convey.So(p.StarsToNext, convey.ShouldEqual, 5)
		})

		convey.Convey("When the top tier is reached", func() {
			p := rewards.ProgressFor(99, tiers)
			convey.So(p.Current.Name, convey.ShouldEqual, "Platinum")
			convey.So(p.Next, convey.ShouldBeNil)
			convey.So(p.Progress, convey.ShouldEqual, 100)
			convey.So(p.StarsToNext, convey.ShouldEqual, 0)
		})

		convey.Convey("When no tier is reached yet", func() {
			p := rewards.ProgressFor(3, tiers[1:])
			convey.So(p.Current.Name, convey.ShouldEqual, rewards.DefaultTierName)
			convey.So(p.Next.MinStars, convey.ShouldEqual, 10)
			convey.So(p.Progress, convey.ShouldEqual, 30)
		})
	})
}

func TestEngine(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	convey.Convey("Given a store with a participant and a tier ladder", t, func() {
		ctx := context.Background()
		store, err := repository.NewTestStore(ctx)
		convey.So(err, convey.ShouldBeNil)
		convey.Reset(func() { _ = store.Close() })

		user := model.User{Name: "ana", Email: "ana@example.com"}
		convey.So(store.CreateUser(ctx, &user), convey.ShouldBeNil)
		participant := model.Participant{UserID: user.ID, ChallengeID: "c1"}
		convey.So(store.CreateParticipant(ctx, &participant), convey.ShouldBeNil)
		for _, tier := range []model.Tier{
			{Name: "Bronze", MinStars: 0},
			{Name: "Silver", MinStars: 10},
			{Name: "Gold", MinStars: 20},
			{Name: "Platinum", MinStars: 30},
		} {
			tier := tier
			convey.So(store.CreateTier(ctx, &tier), convey.ShouldBeNil)
		}

		engine := rewards.NewEngine(store)

		convey.Convey("When stars are granted for a performance of 47", func() {
			perf := model.Performance{ParticipantID: participant.ID, Value: 47}
			convey.So(store.CreatePerformance(ctx, &perf), convey.ShouldBeNil)
			stars, err := engine.GrantStarsForPerformance(ctx, perf.ID)

			convey.Convey("Then the owning user is credited floor(47/10)", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(stars, convey.ShouldEqual, 4)
				balance, err := store.SumStars(ctx, user.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(balance, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When the same performance is granted twice", func() {
			perf := model.Performance{ParticipantID: participant.ID, Value: 60}
			convey.So(store.CreatePerformance(ctx, &perf), convey.ShouldBeNil)
			first, err := engine.GrantStarsForPerformance(ctx, perf.ID)
			convey.So(err, convey.ShouldBeNil)
			_, again := engine.GrantStarsForPerformance(ctx, perf.ID)
			_, fresh := rewards.NewEngine(store).GrantStarsForPerformance(ctx, perf.ID)

			convey.Convey("Then the ledger credits it once, even from a new engine", func() {
				convey.So(first, convey.ShouldEqual, 6)
				convey.So(errors.Is(again, rewards.ErrAlreadyGranted), convey.ShouldBeTrue)
				convey.So(errors.Is(fresh, rewards.ErrAlreadyGranted), convey.ShouldBeTrue)
				convey.So(errors.Is(fresh, model.ErrDuplicate), convey.ShouldBeTrue)
				balance, _ := store.SumStars(ctx, user.ID)
				convey.So(balance, convey.ShouldEqual, 6)
			})
		})

		convey.Convey("When the performance does not exist", func() {
			_, err := engine.GrantStarsForPerformance(ctx, "missing")

			convey.Convey("Then NotFound is returned and nothing is credited", func() {
				convey.So(errors.Is(err, model.ErrNotFound), convey.ShouldBeTrue)
				balance, _ := store.SumStars(ctx, user.ID)
				convey.So(balance, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a balance of 25 is evaluated", func() {
			for _, v := range []float64{100, 150} {
				perf := model.Performance{ParticipantID: participant.ID, Value: v}
				convey.So(store.CreatePerformance(ctx, &perf), convey.ShouldBeNil)
				_, err := engine.GrantStarsForPerformance(ctx, perf.ID)
				convey.So(err, convey.ShouldBeNil)
			}
			first, err := engine.EvaluateTierUnlocks(ctx, user.ID)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the three reached tiers are rewarded", func() {
				convey.So(len(first), convey.ShouldEqual, 3)
				convey.So(first[0].Type, convey.ShouldEqual, rewards.RewardTypeBadge)
				convey.So(first[2].Description, convey.ShouldEqual, "Badge pour le palier Gold")
				convey.So(first[0].UserID, convey.ShouldEqual, user.ID)
			})

			convey.Convey("And a second evaluation creates nothing new", func() {
				second, err := engine.EvaluateTierUnlocks(ctx, user.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(second, convey.ShouldBeEmpty)
				all, _ := store.ListRewardsByUser(ctx, user.ID)
				convey.So(len(all), convey.ShouldEqual, 3)
			})

			convey.Convey("And the legacy mode duplicates rewards", func() {
				legacy := rewards.NewEngine(store, rewards.WithIdempotentRewards(false))
				again, err := legacy.EvaluateTierUnlocks(ctx, user.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(again), convey.ShouldEqual, 3)
			})

			convey.Convey("And progress points at the next tier", func() {
				p, err := engine.Progress(ctx, user.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(p.UserID, convey.ShouldEqual, user.ID)
				convey.So(p.TotalStars, convey.ShouldEqual, 25)
				convey.So(p.Progress, convey.ShouldEqual, 50)
				convey.So(p.StarsToNext, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When the user id is empty", func() {
			_, err := engine.EvaluateTierUnlocks(ctx, "")
			convey.So(errors.Is(err, rewards.ErrInvalidInput), convey.ShouldBeTrue)
		})
	})
}
