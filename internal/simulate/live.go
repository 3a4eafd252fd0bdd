package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/starchallenge/internal/domain/types"
	"github.com/okian/starchallenge/pkg/logger"
)

// liveSubscriber follows one challenge over the websocket channel and keeps
// the most recent leaderboard it was sent.
type liveSubscriber struct {
	conn        *websocket.Conn
	log         logger.Logger
	challengeID string

	mu        sync.Mutex
	last      []types.LeaderboardEntry
	updates   int
	confirmed bool
	done      chan struct{}
}

// websocketURL maps http(s)://host to ws(s)://host/ws.
func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func subscribe(ctx context.Context, baseURL, challengeID string, timeout time.Duration) (*liveSubscriber, error) {
	wsURL, err := websocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(wsReadLimit)

	s := &liveSubscriber{
		conn: conn,
		log:  logger.Named("simulate.live"),
		done: make(chan struct{}),
	}
	go s.readLoop(ctx)

	s.challengeID = challengeID
	if err := s.send(types.MsgSubscribe); err != nil {
		conn.Close()
		<-s.done
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return s, nil
}

// send writes a client message for the subscribed challenge. Only the run
// goroutine writes.
func (s *liveSubscriber) send(msgType string) error {
	return s.conn.WriteJSON(types.ClientMessage{Type: msgType, ChallengeID: s.challengeID})
}

func (s *liveSubscriber) readLoop(ctx context.Context) {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug(ctx, "live channel closed", logger.Error(err))
			}
			return
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			s.log.Warn(ctx, "undecodable live message", logger.Error(err))
			continue
		}
		switch head.Type {
		case types.MsgLeaderboardUpdate:
			var msg types.LeaderboardUpdate
			if err := json.Unmarshal(data, &msg); err != nil {
				s.log.Warn(ctx, "bad leaderboard update", logger.Error(err))
				continue
			}
			s.mu.Lock()
			s.last = msg.Leaderboard
			s.updates++
			s.mu.Unlock()
		case types.MsgSubscriptionConfirmed:
			s.mu.Lock()
			s.confirmed = true
			s.mu.Unlock()
		case types.MsgError:
			s.log.Warn(ctx, "live channel error", logger.String("payload", string(data)))
		}
	}
}

// snapshot returns the last leaderboard and the number of updates seen.
func (s *liveSubscriber) snapshot() ([]types.LeaderboardEntry, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.LeaderboardEntry, len(s.last))
	copy(out, s.last)
	return out, s.updates
}

func (s *liveSubscriber) isConfirmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed
}

func (s *liveSubscriber) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := s.conn.Close()
	<-s.done
	return err
}
