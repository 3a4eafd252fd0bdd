// Package types contains the wire shapes shared by the HTTP API and the live channel.
package types

import "time"

// Live message types.
const (
	MsgLeaderboardUpdate     = "leaderboard_update"
	MsgStatsUpdate           = "stats_update"
	MsgPerformanceChange     = "performance_change"
	MsgSubscriptionConfirmed = "subscription_confirmed"
	MsgPong                  = "pong"
	MsgError                 = "error"

	// Client requests.
	MsgSubscribe          = "subscribe_challenge"
	MsgUnsubscribe        = "unsubscribe_challenge"
	MsgRequestLeaderboard = "request_leaderboard"
	MsgRequestStats       = "request_stats"
	MsgPing               = "ping"

	SubscriptionSubscribed   = "subscribed"
	SubscriptionUnsubscribed = "unsubscribed"
)

// UserSummary is the user block embedded in a leaderboard row.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"nom"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// LeaderboardEntry is one ranked participant.
type LeaderboardEntry struct {
	Rank             int         `json:"rang"`
	User             UserSummary `json:"utilisateur"`
	TotalScore       float64     `json:"scoreTotal"`
	ParticipantID    string      `json:"participantId"`
	UserID           string      `json:"utilisateurId"`
	ChallengeID      string      `json:"challengeId"`
	ValidationStatus string      `json:"isValidated"`
	JoinedAt         time.Time   `json:"-"`
}

// Statistics summarizes a leaderboard.
type Statistics struct {
	TotalParticipants int       `json:"totalParticipants"`
	MaxScore          float64   `json:"scoreMax"`
	MinScore          float64   `json:"scoreMin"`
	MeanScore         float64   `json:"scoreMoyen"`
	ComputedAt        time.Time `json:"derniereMiseAJour"`
}

// LeaderboardUpdate is pushed to challenge subscribers.
type LeaderboardUpdate struct {
	Type        string             `json:"type"`
	ChallengeID string             `json:"challengeId"`
	Leaderboard []LeaderboardEntry `json:"classement"`
	Timestamp   time.Time          `json:"timestamp"`
}

// StatsUpdate is pushed to challenge subscribers.
type StatsUpdate struct {
	Type        string     `json:"type"`
	ChallengeID string     `json:"challengeId"`
	Statistics  Statistics `json:"statistiques"`
	Timestamp   time.Time  `json:"timestamp"`
}

// PerformanceChange tells subscribers that something changed.
type PerformanceChange struct {
	Type          string    `json:"type"`
	ParticipantID string    `json:"participantId"`
	Action        string    `json:"action"`
	ChallengeID   string    `json:"challengeId"`
	Timestamp     time.Time `json:"timestamp"`
}

// SubscriptionConfirmed acknowledges a subscribe or unsubscribe.
type SubscriptionConfirmed struct {
	Type        string `json:"type"`
	ChallengeID string `json:"challengeId"`
	Status      string `json:"status"`
}

// Pong answers a ping.
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorMessage reports a rejected client request.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is what clients send over the live channel.
type ClientMessage struct {
	Type        string `json:"type"`
	ChallengeID string `json:"challengeId,omitempty"`
}

// ChallengeSubscriptions counts subscribers of one challenge.
type ChallengeSubscriptions struct {
	ChallengeID       string `json:"challengeId"`
	SubscribedClients int    `json:"subscribedClients"`
}

// ConnectionStats describes the live channel.
type ConnectionStats struct {
	ConnectedClients       int                      `json:"connectedClients"`
	ChallengeSubscriptions []ChallengeSubscriptions `json:"challengeSubscriptions"`
}

// TierSummary is a tier as shown in progress reports.
type TierSummary struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"nom"`
	MinStars int    `json:"etoilesMin"`
}

// TierProgress reports a user's standing against the tier ladder.
type TierProgress struct {
	UserID      string       `json:"userId"`
	TotalStars  int          `json:"totalEtoiles"`
	Current     TierSummary  `json:"current"`
	Next        *TierSummary `json:"next"`
	Progress    int          `json:"progress"`
	StarsToNext int          `json:"starsToNext"`
}
