// Package live pushes leaderboard and statistics snapshots to subscribers of
// a challenge.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/internal/domain/ranking"
	"github.com/okian/starchallenge/internal/domain/types"
	"github.com/okian/starchallenge/pkg/logger"
	"github.com/okian/starchallenge/pkg/metrics"
)

// SnapshotSource computes the current leaderboard of a challenge.
type SnapshotSource interface {
	ComputeLeaderboard(ctx context.Context, challengeID string) ([]types.LeaderboardEntry, error)
}

// Broker fans snapshots out to challenge subscribers. Its methods never
// return delivery errors; failures are logged and counted.
type Broker struct {
	registry      *Registry
	source        SnapshotSource
	log           logger.Logger
	now           func() time.Time
	snapshotDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewBroker creates a broker that reads snapshots from source.
func NewBroker(source SnapshotSource, opts ...Option) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		registry:      NewRegistry(),
		source:        source,
		log:           logger.Named("live"),
		now:           time.Now,
		snapshotDelay: defaultSnapshotDelay,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Context is cancelled when the broker closes. Transports run their pumps under it.
func (b *Broker) Context() context.Context { return b.ctx }

// Registry exposes the membership table.
func (b *Broker) Registry() *Registry { return b.registry }

// Connect registers a new connection.
func (b *Broker) Connect(c Conn) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}
	b.registry.Add(c)
	b.observe()
	b.log.Debug(b.ctx, "client connected", logger.String("connId", c.ID()))
	return nil
}

// Disconnect removes a connection from every challenge it was subscribed to.
func (b *Broker) Disconnect(connID string) {
	c, left := b.registry.Remove(connID)
	b.observe()
	if c == nil {
		return
	}
	b.log.Debug(b.ctx, "client disconnected",
		logger.String("connId", connID),
		logger.Int("topics", len(left)),
	)
}

// Subscribe adds c to a challenge and confirms it. A new membership also
// schedules one leaderboard and one statistics snapshot for c alone;
// subscribing twice is otherwise a no-op.
func (b *Broker) Subscribe(c Conn, challengeID string) bool {
	if challengeID == "" {
		b.sendError(c, "challengeId is required")
		return false
	}
	added := b.registry.Join(c, challengeID)
	b.observe()
	b.sendTo(c, types.MsgSubscriptionConfirmed, types.SubscriptionConfirmed{
		Type:        types.MsgSubscriptionConfirmed,
		ChallengeID: challengeID,
		Status:      types.SubscriptionSubscribed,
	})
	if added {
		b.scheduleSnapshot(c, challengeID)
	}
	return added
}

// Unsubscribe removes c from a challenge and confirms it.
func (b *Broker) Unsubscribe(c Conn, challengeID string) bool {
	removed := b.registry.Leave(c.ID(), challengeID)
	b.observe()
	b.sendTo(c, types.MsgSubscriptionConfirmed, types.SubscriptionConfirmed{
		Type:        types.MsgSubscriptionConfirmed,
		ChallengeID: challengeID,
		Status:      types.SubscriptionUnsubscribed,
	})
	return removed
}

func (b *Broker) scheduleSnapshot(c Conn, challengeID string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if b.snapshotDelay > 0 {
			t := time.NewTimer(b.snapshotDelay)
			defer t.Stop()
			select {
			case <-b.ctx.Done():
				return
			case <-t.C:
			}
		}
		b.SendSnapshotTo(b.ctx, c, challengeID)
	}()
}

// SendSnapshotTo delivers a leaderboard and its statistics to one connection.
func (b *Broker) SendSnapshotTo(ctx context.Context, c Conn, challengeID string) {
	board, ok := b.compute(ctx, challengeID)
	if !ok {
		return
	}
	now := b.now().UTC()
	b.sendTo(c, types.MsgLeaderboardUpdate, b.leaderboardMessage(challengeID, board, now))
	b.sendTo(c, types.MsgStatsUpdate, b.statsMessage(challengeID, board, now))
}

// SendLeaderboardTo answers a client leaderboard request.
func (b *Broker) SendLeaderboardTo(ctx context.Context, c Conn, challengeID string) {
	board, ok := b.compute(ctx, challengeID)
	if !ok {
		b.sendError(c, "leaderboard unavailable")
		return
	}
	b.sendTo(c, types.MsgLeaderboardUpdate, b.leaderboardMessage(challengeID, board, b.now().UTC()))
}

// SendStatsTo answers a client statistics request.
func (b *Broker) SendStatsTo(ctx context.Context, c Conn, challengeID string) {
	board, ok := b.compute(ctx, challengeID)
	if !ok {
		b.sendError(c, "statistics unavailable")
		return
	}
	b.sendTo(c, types.MsgStatsUpdate, b.statsMessage(challengeID, board, b.now().UTC()))
}

// Publish computes the leaderboard once and pushes it, followed by the
// statistics derived from it, to every subscriber. It returns the number of
// successful deliveries and skips computation without subscribers.
func (b *Broker) Publish(ctx context.Context, challengeID string) int {
	return b.publish(ctx, challengeID, true, true)
}

// PublishLeaderboard pushes only the leaderboard.
func (b *Broker) PublishLeaderboard(ctx context.Context, challengeID string) int {
	return b.publish(ctx, challengeID, true, false)
}

// PublishStats pushes only the statistics.
func (b *Broker) PublishStats(ctx context.Context, challengeID string) int {
	return b.publish(ctx, challengeID, false, true)
}

func (b *Broker) publish(ctx context.Context, challengeID string, leaderboard, stats bool) int {
	if b.registry.Count(challengeID) == 0 {
		return 0
	}
	board, ok := b.compute(ctx, challengeID)
	if !ok {
		return 0
	}
	now := b.now().UTC()
	delivered := 0
	if leaderboard {
		delivered += b.broadcast(challengeID, types.MsgLeaderboardUpdate, b.leaderboardMessage(challengeID, board, now))
	}
	if stats {
		delivered += b.broadcast(challengeID, types.MsgStatsUpdate, b.statsMessage(challengeID, board, now))
	}
	return delivered
}

// NotifyPerformanceChange tells subscribers that a performance changed.
func (b *Broker) NotifyPerformanceChange(challengeID, participantID string, kind model.ChangeKind) int {
	if b.registry.Count(challengeID) == 0 {
		return 0
	}
	return b.broadcast(challengeID, types.MsgPerformanceChange, types.PerformanceChange{
		Type:          types.MsgPerformanceChange,
		ParticipantID: participantID,
		Action:        string(kind),
		ChallengeID:   challengeID,
		Timestamp:     b.now().UTC(),
	})
}

// Stats reports the live channel state.
func (b *Broker) Stats() types.ConnectionStats {
	return b.registry.Stats()
}

// HandleMessage dispatches one client request.
func (b *Broker) HandleMessage(ctx context.Context, c Conn, raw []byte) {
	var msg types.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		b.sendError(c, "invalid message")
		return
	}
	switch msg.Type {
	case types.MsgSubscribe:
		b.Subscribe(c, msg.ChallengeID)
	case types.MsgUnsubscribe:
		b.Unsubscribe(c, msg.ChallengeID)
	case types.MsgRequestLeaderboard:
		b.SendLeaderboardTo(ctx, c, msg.ChallengeID)
	case types.MsgRequestStats:
		b.SendStatsTo(ctx, c, msg.ChallengeID)
	case types.MsgPing:
		b.sendTo(c, types.MsgPong, types.Pong{Type: types.MsgPong, Timestamp: b.now().UnixMilli()})
	default:
		b.sendError(c, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// Close cancels pending snapshots and closes every connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	for _, c := range b.registry.Conns() {
		b.registry.Remove(c.ID())
		_ = c.Close()
	}
	b.observe()
	return nil
}

func (b *Broker) compute(ctx context.Context, challengeID string) ([]types.LeaderboardEntry, bool) {
	board, err := b.source.ComputeLeaderboard(ctx, challengeID)
	if err != nil {
		metrics.RecordErrorByComponent("live", "snapshot")
		b.log.Error(ctx, "snapshot computation failed",
			logger.String("challengeId", challengeID),
			logger.Error(err),
		)
		return nil, false
	}
	return board, true
}

func (b *Broker) leaderboardMessage(challengeID string, board []types.LeaderboardEntry, at time.Time) types.LeaderboardUpdate {
	return types.LeaderboardUpdate{
		Type:        types.MsgLeaderboardUpdate,
		ChallengeID: challengeID,
		Leaderboard: board,
		Timestamp:   at,
	}
}

func (b *Broker) statsMessage(challengeID string, board []types.LeaderboardEntry, at time.Time) types.StatsUpdate {
	return types.StatsUpdate{
		Type:        types.MsgStatsUpdate,
		ChallengeID: challengeID,
		Statistics:  ranking.Summarize(board, at),
		Timestamp:   at,
	}
}

// broadcast marshals payload once and offers it to each subscriber without blocking.
func (b *Broker) broadcast(challengeID, msgType string, payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.RecordErrorByComponent("live", "marshal")
		b.log.Error(b.ctx, "marshal live message", logger.String("type", msgType), logger.Error(err))
		return 0
	}
	metrics.RecordLivePublish(msgType)

	delivered := 0
	for _, c := range b.registry.Subscribers(challengeID) {
		if b.deliver(c, msgType, data) {
			delivered++
		}
	}
	return delivered
}

func (b *Broker) sendTo(c Conn, msgType string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.RecordErrorByComponent("live", "marshal")
		b.log.Error(b.ctx, "marshal live message", logger.String("type", msgType), logger.Error(err))
		return false
	}
	return b.deliver(c, msgType, data)
}

func (b *Broker) sendError(c Conn, message string) {
	b.sendTo(c, types.MsgError, types.ErrorMessage{Type: types.MsgError, Message: message})
}

func (b *Broker) deliver(c Conn, msgType string, data []byte) bool {
	if err := c.Send(data); err != nil {
		reason := "send_error"
		switch {
		case errors.Is(err, ErrSlowConsumer):
			reason = "slow_consumer"
		case errors.Is(err, ErrConnClosed):
			reason = "closed"
		}
		metrics.RecordLiveDeliveryFailure(msgType, reason)
		b.log.Warn(b.ctx, "live delivery failed",
			logger.String("connId", c.ID()),
			logger.String("type", msgType),
			logger.Error(err),
		)
		if errors.Is(err, ErrSlowConsumer) {
			b.dropSlow(c)
		}
		return false
	}
	metrics.RecordLiveDelivery(msgType)
	return true
}

// dropSlow evicts a connection whose outbound buffer is full. Closing it
// ends the write pump, and the read pump's Disconnect is then a no-op.
func (b *Broker) dropSlow(c Conn) {
	if removed, _ := b.registry.Remove(c.ID()); removed == nil {
		return
	}
	b.observe()
	if err := c.Close(); err != nil {
		b.log.Debug(b.ctx, "close slow consumer", logger.String("connId", c.ID()), logger.Error(err))
	}
	b.log.Warn(b.ctx, "slow consumer dropped", logger.String("connId", c.ID()))
}

func (b *Broker) observe() {
	stats := b.registry.Stats()
	metrics.UpdateLiveConnections(stats.ConnectedClients)
	metrics.UpdateLiveSubscriptions(b.registry.subscriptionCount())
}
