// Package simulate drives a running service end to end: it seeds a challenge,
// submits performances concurrently, listens on the live channel and checks
// the final leaderboard against totals computed locally.
package simulate

import (
	"time"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL         string        // Base URL of the service
	Participants    int           // Number of participants to seed
	Criteria        int           // Number of weighted criteria
	PerParticipant  int           // Performances submitted per participant
	Workers         int           // Concurrent submitters
	Timeout         time.Duration // HTTP request timeout
	SettleTimeout   time.Duration // How long to wait for the live channel to converge
	OutputFile      string        // Optional JSON report path
	Verbose         bool          // Enable verbose logging
	DeleteEveryNth  int           // Delete every Nth submitted performance; 0 disables
	UpdateEveryNth  int           // Update every Nth submitted performance; 0 disables
	SkipLiveChannel bool          // Do not open a websocket subscriber
	Seed            uint64        // Random seed; equal seeds generate equal runs
}

// Seed is what the run created before submitting performances.
type Seed struct {
	ChallengeID  string
	Criteria     []Criterion
	Participants []Participant
}

// Criterion is a seeded criterion.
type Criterion struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

// Participant is a seeded participant and its user.
type Participant struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

// Submission is one performance the run sends.
type Submission struct {
	ParticipantID string  `json:"participantId"`
	CriterionID   string  `json:"criterionId"`
	Value         float64 `json:"value"`
}

// Stats holds run statistics.
type Stats struct {
	Submitted       int
	Succeeded       int
	Failed          int
	Updated         int
	Deleted         int
	LiveUpdates     int
	LeaderboardRows int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
