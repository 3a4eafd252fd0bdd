package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/internal/domain/types"
	"github.com/okian/starchallenge/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	msgs   []map[string]any
	full   bool
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnClosed
	}
	if f.full {
		return ErrSlowConsumer
	}
	var m map[string]any
	if err := json.Unmarshal(msg, &m); err != nil {
		return err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i], _ = m["type"].(string)
	}
	return out
}

func (f *fakeConn) count(msgType string) int {
	n := 0
	for _, t := range f.types() {
		if t == msgType {
			n++
		}
	}
	return n
}

func (f *fakeConn) last(msgType string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i]["type"] == msgType {
			return f.msgs[i]
		}
	}
	return nil
}

type fakeSource struct {
	calls atomic.Int32
	err   error
	board []types.LeaderboardEntry
}

func (s *fakeSource) ComputeLeaderboard(_ context.Context, challengeID string) ([]types.LeaderboardEntry, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]types.LeaderboardEntry, len(s.board))
	copy(out, s.board)
	for i := range out {
		out[i].ChallengeID = challengeID
	}
	return out, nil
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestBroker(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Convey("Given a broker over a two-row leaderboard", t, func() {
		src := &fakeSource{board: []types.LeaderboardEntry{
			{Rank: 1, ParticipantID: "p1", TotalScore: 90},
			{Rank: 2, ParticipantID: "p2", TotalScore: 30},
		}}
		b := NewBroker(src, WithSnapshotDelay(0))
		Reset(func() { _ = b.Close() })
		ctx := context.Background()

		Convey("When nobody is subscribed", func() {
			n := b.Publish(ctx, "c1")

			Convey("Then publishing is a no-op that computes nothing", func() {
				So(n, ShouldEqual, 0)
				So(src.calls.Load(), ShouldEqual, 0)
			})
		})

		Convey("When a connection subscribes", func() {
			conn := newFakeConn("a")
			So(b.Connect(conn), ShouldBeNil)
			So(b.Subscribe(conn, "c1"), ShouldBeTrue)

			Convey("Then it is confirmed and receives one snapshot asynchronously", func() {
				So(conn.types()[0], ShouldEqual, types.MsgSubscriptionConfirmed)
				So(eventually(func() bool { return conn.count(types.MsgStatsUpdate) == 1 }), ShouldBeTrue)
				So(conn.count(types.MsgLeaderboardUpdate), ShouldEqual, 1)
				stats := conn.last(types.MsgStatsUpdate)["statistiques"].(map[string]any)
				So(stats["totalParticipants"], ShouldEqual, 2.0)
				So(stats["scoreMoyen"], ShouldEqual, 60.0)
			})

			Convey("And subscribing again does not duplicate delivery", func() {
				So(b.Subscribe(conn, "c1"), ShouldBeFalse)
				So(eventually(func() bool { return conn.count(types.MsgStatsUpdate) == 1 }), ShouldBeTrue)
				before := conn.count(types.MsgLeaderboardUpdate)
				b.PublishLeaderboard(ctx, "c1")
				So(conn.count(types.MsgLeaderboardUpdate), ShouldEqual, before+1)
			})
		})

		Convey("When two connections share a topic and one is slow", func() {
			fast := newFakeConn("fast")
			slow := newFakeConn("slow")
			b.Subscribe(fast, "c1")
			b.Subscribe(slow, "c1")
			So(eventually(func() bool { return slow.count(types.MsgStatsUpdate) == 1 && fast.count(types.MsgStatsUpdate) == 1 }), ShouldBeTrue)
			slow.mu.Lock()
			slow.full = true
			slow.mu.Unlock()

			n := b.Publish(ctx, "c1")

			Convey("Then the fast one still gets leaderboard then stats from one computation", func() {
				So(n, ShouldEqual, 2)
				got := fast.types()
				So(got[len(got)-2], ShouldEqual, types.MsgLeaderboardUpdate)
				So(got[len(got)-1], ShouldEqual, types.MsgStatsUpdate)
			})

			Convey("Then the slow one is closed and dropped from the topic", func() {
				So(slow.isClosed(), ShouldBeTrue)
				So(b.Registry().Count("c1"), ShouldEqual, 1)
				So(b.Registry().Topics("slow"), ShouldBeEmpty)
				So(b.Publish(ctx, "c1"), ShouldEqual, 2)
			})
		})

		Convey("When a connection disconnects", func() {
			conn := newFakeConn("gone")
			b.Subscribe(conn, "c1")
			b.Subscribe(conn, "c2")
			b.Disconnect("gone")

			Convey("Then no topic references it any more", func() {
				So(b.Registry().Count("c1"), ShouldEqual, 0)
				So(b.Registry().Count("c2"), ShouldEqual, 0)
				So(b.Registry().Topics("gone"), ShouldBeEmpty)
				So(b.Stats().ConnectedClients, ShouldEqual, 0)
				So(b.Publish(ctx, "c1"), ShouldEqual, 0)
			})
		})

		Convey("When a performance changes", func() {
			conn := newFakeConn("a")
			b.Subscribe(conn, "c1")
			n := b.NotifyPerformanceChange("c1", "p1", model.ChangeUpdate)

			Convey("Then a distinct change event is delivered", func() {
				So(n, ShouldEqual, 1)
				msg := conn.last(types.MsgPerformanceChange)
				So(msg["participantId"], ShouldEqual, "p1")
				So(msg["action"], ShouldEqual, "update")
				So(msg["challengeId"], ShouldEqual, "c1")
			})
		})

		Convey("When the snapshot source fails", func() {
			src.err = errors.New("db down")
			conn := newFakeConn("a")
			b.Subscribe(conn, "c1")

			Convey("Then publish degrades to zero deliveries without panicking", func() {
				So(func() { b.Publish(ctx, "c1") }, ShouldNotPanic)
				So(b.Publish(ctx, "c1"), ShouldEqual, 0)
			})
		})

		Convey("When clients send requests", func() {
			conn := newFakeConn("a")
			b.HandleMessage(ctx, conn, []byte(`{"type":"ping"}`))
			b.HandleMessage(ctx, conn, []byte(`{"type":"request_leaderboard","challengeId":"c9"}`))
			b.HandleMessage(ctx, conn, []byte(`{"type":"request_stats","challengeId":"c9"}`))
			b.HandleMessage(ctx, conn, []byte(`{"type":"dance"}`))
			b.HandleMessage(ctx, conn, []byte(`not json`))
			b.HandleMessage(ctx, conn, []byte(`{"type":"subscribe_challenge"}`))
			b.HandleMessage(ctx, conn, []byte(`{"type":"unsubscribe_challenge","challengeId":"c9"}`))

			Convey("Then each gets the matching reply", func() {
				So(conn.types(), ShouldResemble, []string{
					"pong", "leaderboard_update", "stats_update", "error", "error", "error", "subscription_confirmed",
				})
				So(conn.last(types.MsgPong)["timestamp"], ShouldBeGreaterThan, 0)
				So(conn.last(types.MsgSubscriptionConfirmed)["status"], ShouldEqual, "unsubscribed")
			})
		})

		Convey("When the broker closes", func() {
			conn := newFakeConn("a")
			So(b.Connect(conn), ShouldBeNil)
			So(b.Close(), ShouldBeNil)

			Convey("Then connections are closed and new ones refused", func() {
				So(conn.isClosed(), ShouldBeTrue)
				So(errors.Is(b.Connect(newFakeConn("b")), ErrBrokerClosed), ShouldBeTrue)
			})
		})
	})
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	Convey("Given a registry under concurrent churn", t, func() {
		r := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c := newFakeConn(fmt.Sprintf("c%d", i))
				for j := 0; j < 50; j++ {
					topic := fmt.Sprintf("t%d", j%5)
					r.Join(c, topic)
					_ = r.Subscribers(topic)
					r.Leave(c.ID(), topic)
				}
				r.Join(c, "final")
			}(i)
		}
		wg.Wait()

		Convey("Then the table is consistent", func() {
			So(r.Count("final"), ShouldEqual, 20)
			stats := r.Stats()
			So(stats.ConnectedClients, ShouldEqual, 20)
			So(len(stats.ChallengeSubscriptions), ShouldEqual, 1)
			for i := 0; i < 20; i++ {
				r.Remove(fmt.Sprintf("c%d", i))
			}
			So(r.Stats().ConnectedClients, ShouldEqual, 0)
			So(r.Count("final"), ShouldEqual, 0)
		})
	})
}
