package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	service "github.com/okian/starchallenge/internal/app"
	"github.com/okian/starchallenge/internal/adapters/repository"
	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/internal/domain/types"
	"github.com/okian/starchallenge/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type recordingConn struct {
	id   string
	mu   sync.Mutex
	msgs [][]byte
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, append([]byte(nil), b...))
	return nil
}

func (c *recordingConn) Close() error { return nil }

// lastBoard returns the latest leaderboard pushed to the connection.
func (c *recordingConn) lastBoard() (types.LeaderboardUpdate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		var u types.LeaderboardUpdate
		if json.Unmarshal(c.msgs[i], &u) == nil && u.Type == types.MsgLeaderboardUpdate {
			return u, true
		}
	}
	return types.LeaderboardUpdate{}, false
}

func (c *recordingConn) count(msgType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, raw := range c.msgs {
		var m struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &m) == nil && m.Type == msgType {
			n++
		}
	}
	return n
}

func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func strPtr(s string) *string { return &s }

func TestServiceEndToEnd(t *testing.T) {
	Convey("Given a started service over an in-memory store", t, func() {
		ctx := context.Background()
		store, err := repository.NewTestStore(ctx)
		So(err, ShouldBeNil)
		defer store.Close()

		svc := service.New(store,
			service.WithWorkerCount(2),
			service.WithQueueSize(100),
			service.WithSnapshotDelay(0),
			service.WithStatusSyncInterval(0),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		now := time.Now().UTC()
		user := &model.User{Name: "Awa", Email: "awa@example.com"}
		So(svc.CreateUser(ctx, user), ShouldBeNil)
		challenge := &model.Challenge{Name: "Sprint", StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour)}
		So(svc.CreateChallenge(ctx, challenge), ShouldBeNil)
		So(challenge.Status, ShouldEqual, model.StatusActive)
		criterion := &model.Criterion{Name: "Distance", Weight: 2, ChallengeID: challenge.ID}
		So(svc.CreateCriterion(ctx, criterion), ShouldBeNil)
		participant := &model.Participant{UserID: user.ID, ChallengeID: challenge.ID}
		So(svc.JoinChallenge(ctx, participant), ShouldBeNil)
		So(svc.CreateTier(ctx, &model.Tier{Name: "Bronze", MinStars: 5}), ShouldBeNil)

		conn := &recordingConn{id: "watcher"}
		So(svc.Broker().Connect(conn), ShouldBeNil)
		So(svc.Broker().Subscribe(conn, challenge.ID), ShouldBeTrue)

		Convey("When a performance is created", func() {
			perf := &model.Performance{ParticipantID: participant.ID, CriterionID: strPtr(criterion.ID), Value: 60}
			res, err := svc.CreatePerformance(ctx, perf)
			So(err, ShouldBeNil)

			Convey("Then the score is persisted and subscribers see it", func() {
				So(res.Total, ShouldEqual, 120)
				So(eventually(2*time.Second, func() bool {
					u, ok := conn.lastBoard()
					return ok && len(u.Leaderboard) == 1 && u.Leaderboard[0].TotalScore == 120
				}), ShouldBeTrue)
				So(eventually(time.Second, func() bool { return conn.count(types.MsgPerformanceChange) == 1 }), ShouldBeTrue)

				board, err := svc.Leaderboard(ctx, challenge.ID, false)
				So(err, ShouldBeNil)
				So(board[0].Rank, ShouldEqual, 1)
				So(board[0].User.Name, ShouldEqual, "Awa")
			})

			Convey("Then the reward pipeline grants stars and unlocks the tier", func() {
				So(eventually(2*time.Second, func() bool {
					p, err := svc.Progress(ctx, user.ID)
					return err == nil && p.TotalStars == 6
				}), ShouldBeTrue)
				So(eventually(2*time.Second, func() bool {
					rewards, err := svc.ListRewards(ctx, user.ID)
					return err == nil && len(rewards) == 1
				}), ShouldBeTrue)

				_, err := svc.GrantStars(ctx, perf.ID)
				So(errors.Is(err, service.ErrAlreadyGranted), ShouldBeTrue)

				again, err := svc.EvaluateRewards(ctx, user.ID)
				So(err, ShouldBeNil)
				So(again, ShouldBeEmpty)
			})

			Convey("And the performance is updated", func() {
				perf.Value = 10
				updated, err := svc.UpdatePerformance(ctx, &model.Performance{ID: perf.ID, CriterionID: strPtr(criterion.ID), Value: 10})
				So(err, ShouldBeNil)
				So(updated.ParticipantID, ShouldEqual, participant.ID)

				Convey("Then the new total is broadcast", func() {
					So(eventually(2*time.Second, func() bool {
						u, ok := conn.lastBoard()
						return ok && len(u.Leaderboard) == 1 && u.Leaderboard[0].TotalScore == 20
					}), ShouldBeTrue)
				})
			})

			Convey("And the performance is deleted", func() {
				So(svc.DeletePerformance(ctx, perf.ID), ShouldBeNil)

				Convey("Then the score drops back to zero", func() {
					stats, err := svc.Statistics(ctx, challenge.ID)
					So(err, ShouldBeNil)
					So(stats.TotalParticipants, ShouldEqual, 1)
					So(stats.MaxScore, ShouldEqual, 0)
					So(eventually(time.Second, func() bool { return conn.count(types.MsgPerformanceChange) == 2 }), ShouldBeTrue)

					_, err = svc.GetPerformance(ctx, perf.ID)
					So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				})
			})
		})

		Convey("When a performance references an unknown participant", func() {
			_, err := svc.CreatePerformance(ctx, &model.Performance{ParticipantID: "ghost", Value: 10})

			Convey("Then it is rejected and nothing is broadcast", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				So(conn.count(types.MsgPerformanceChange), ShouldEqual, 0)
			})
		})

		Convey("When winners are selected twice", func() {
			_, err := svc.CreatePerformance(ctx, &model.Performance{ParticipantID: participant.ID, CriterionID: strPtr(criterion.ID), Value: 5})
			So(err, ShouldBeNil)
			first, err := svc.SelectWinners(ctx, challenge.ID, 0)
			So(err, ShouldBeNil)
			second, err := svc.SelectWinners(ctx, challenge.ID, 0)
			So(err, ShouldBeNil)

			Convey("Then the first selection is kept", func() {
				So(len(first), ShouldEqual, 1)
				So(second[0].ID, ShouldEqual, first[0].ID)
				listed, err := svc.ListWinners(ctx, challenge.ID)
				So(err, ShouldBeNil)
				So(len(listed), ShouldEqual, 1)
			})
		})

		Convey("When reading an unknown challenge", func() {
			_, err := svc.Leaderboard(ctx, "nope", false)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			_, err = svc.Statistics(ctx, "nope")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When refreshing the leaderboard", func() {
			board, err := svc.Leaderboard(ctx, challenge.ID, true)

			Convey("Then scores are recomputed and returned", func() {
				So(err, ShouldBeNil)
				So(len(board), ShouldEqual, 1)
				So(svc.GetStats()["started"], ShouldEqual, true)
				So(svc.LiveStats().ConnectedClients, ShouldEqual, 1)
			})
		})
	})
}

func TestServiceStatusSync(t *testing.T) {
	Convey("Given a challenge stored as pending whose start has passed", t, func() {
		ctx := context.Background()
		store, err := repository.NewTestStore(ctx)
		So(err, ShouldBeNil)
		defer store.Close()

		now := time.Now().UTC()
		c := &model.Challenge{Name: "Late", StartDate: now.Add(-time.Minute), EndDate: now.Add(time.Hour), Status: model.StatusPending}
		So(store.CreateChallenge(ctx, c), ShouldBeNil)

		svc := service.New(store, service.WithStatusSyncInterval(0))

		Convey("When statuses are synced", func() {
			moved := svc.SyncStatuses(ctx)

			Convey("Then the stored status becomes active", func() {
				So(moved, ShouldEqual, 1)
				stored, err := store.GetChallenge(ctx, c.ID)
				So(err, ShouldBeNil)
				So(stored.Status, ShouldEqual, model.StatusActive)
			})
		})
	})
}

// failingScores rejects score writes so propagation fails after the
// performance row is committed.
type failingScores struct {
	repository.Store
}

var errScoreWrite = errors.New("score write rejected")

func (f failingScores) UpdateParticipantScore(context.Context, string, float64) error {
	return errScoreWrite
}

func seedParticipant(ctx context.Context, svc *service.Service, tierStars int) (*model.User, *model.Participant, *model.Criterion) {
	now := time.Now().UTC()
	user := &model.User{Name: "Lina", Email: "lina@example.com"}
	So(svc.CreateUser(ctx, user), ShouldBeNil)
	challenge := &model.Challenge{Name: "Relay", StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour)}
	So(svc.CreateChallenge(ctx, challenge), ShouldBeNil)
	criterion := &model.Criterion{Name: "Laps", Weight: 1, ChallengeID: challenge.ID}
	So(svc.CreateCriterion(ctx, criterion), ShouldBeNil)
	participant := &model.Participant{UserID: user.ID, ChallengeID: challenge.ID}
	So(svc.JoinChallenge(ctx, participant), ShouldBeNil)
	So(svc.CreateTier(ctx, &model.Tier{Name: "Bronze", MinStars: tierStars}), ShouldBeNil)
	return user, participant, criterion
}

func TestServiceManualGrants(t *testing.T) {
	Convey("Given a service whose workers are not running and a one-key deduper", t, func() {
		ctx := context.Background()
		store, err := repository.NewTestStore(ctx)
		So(err, ShouldBeNil)
		defer store.Close()

		svc := service.New(store, service.WithDedupeSize(1), service.WithStatusSyncInterval(0))
		user, participant, criterion := seedParticipant(ctx, svc, 5)

		a := &model.Performance{ParticipantID: participant.ID, CriterionID: strPtr(criterion.ID), Value: 60}
		_, err = svc.CreatePerformance(ctx, a)
		So(err, ShouldBeNil)
		b := &model.Performance{ParticipantID: participant.ID, CriterionID: strPtr(criterion.ID), Value: 40}
		_, err = svc.CreatePerformance(ctx, b)
		So(err, ShouldBeNil)

		Convey("When stars are granted by hand", func() {
			g, err := svc.GrantStars(ctx, a.ID)
			So(err, ShouldBeNil)

			Convey("Then the reached tier is unlocked in the same call", func() {
				So(g.Stars, ShouldEqual, 6)
				rewards, err := svc.ListRewards(ctx, user.ID)
				So(err, ShouldBeNil)
				So(len(rewards), ShouldEqual, 1)
			})
		})

		Convey("When a grant is repeated after its key left the deduper", func() {
			_, err := svc.GrantStars(ctx, a.ID)
			So(err, ShouldBeNil)
			_, err = svc.GrantStars(ctx, b.ID)
			So(err, ShouldBeNil)
			_, again := svc.GrantStars(ctx, a.ID)

			Convey("Then the ledger refuses it and the balance counts each performance once", func() {
				So(errors.Is(again, service.ErrAlreadyGranted), ShouldBeTrue)
				p, err := svc.Progress(ctx, user.ID)
				So(err, ShouldBeNil)
				So(p.TotalStars, ShouldEqual, 10)
			})

			Convey("And a restarted service refuses it too", func() {
				restarted := service.New(store, service.WithStatusSyncInterval(0))
				_, err := restarted.GrantStars(ctx, b.ID)
				So(errors.Is(err, service.ErrAlreadyGranted), ShouldBeTrue)
			})
		})
	})
}

func TestServicePropagationFailure(t *testing.T) {
	Convey("Given a started service whose score writes fail", t, func() {
		ctx := context.Background()
		store, err := repository.NewTestStore(ctx)
		So(err, ShouldBeNil)
		defer store.Close()

		svc := service.New(failingScores{Store: store},
			service.WithWorkerCount(1),
			service.WithSnapshotDelay(0),
			service.WithStatusSyncInterval(0),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()
		user, participant, criterion := seedParticipant(ctx, svc, 100)

		Convey("When a performance is created", func() {
			perf := &model.Performance{ParticipantID: participant.ID, CriterionID: strPtr(criterion.ID), Value: 30}
			_, err := svc.CreatePerformance(ctx, perf)

			Convey("Then the caller sees the failure but the saved row still earns its stars", func() {
				So(errors.Is(err, errScoreWrite), ShouldBeTrue)
				stored, err := svc.GetPerformance(ctx, perf.ID)
				So(err, ShouldBeNil)
				So(stored.Value, ShouldEqual, 30)
				So(eventually(2*time.Second, func() bool {
					p, err := svc.Progress(ctx, user.ID)
					return err == nil && p.TotalStars == 3
				}), ShouldBeTrue)
			})
		})

		Convey("When a performance value is out of range", func() {
			_, err := svc.CreatePerformance(ctx, &model.Performance{ParticipantID: participant.ID, Value: 1e300})
			So(errors.Is(err, model.ErrInvalid), ShouldBeTrue)
		})
	})
}
