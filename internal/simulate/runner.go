package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/starchallenge/internal/domain/types"
	"github.com/okian/starchallenge/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	reportPermission    = 0600
)

// Report is the outcome of a run, optionally written as JSON.
type Report struct {
	ChallengeID  string                   `json:"challengeId"`
	Stats        Stats                    `json:"stats"`
	Expected     map[string]float64       `json:"expected"`
	Leaderboard  []types.LeaderboardEntry `json:"leaderboard"`
	LiveMatched  bool                     `json:"liveMatched"`
	Issues       []string                 `json:"issues,omitempty"`
	Participants []Participant            `json:"participants"`
	Criteria     []Criterion              `json:"criteria"`
}

// Run seeds a challenge, submits performances, applies the configured
// mutations and verifies the HTTP and live leaderboards.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	cfg.applyDefaults()
	log := logger.Named("simulate")
	stats := Stats{StartTime: time.Now()}

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("participants", cfg.Participants),
		logger.Int("criteria", cfg.Criteria),
		logger.Int("perParticipant", cfg.PerParticipant),
		logger.Int("workers", cfg.Workers))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := client.checkHealth(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	rng := newRandSource(cfg.Seed)
	seed, err := seedChallenge(ctx, cfg, client, rng)
	if err != nil {
		return nil, fmt.Errorf("seeding failed: %w", err)
	}

	var sub *liveSubscriber
	if !cfg.SkipLiveChannel {
		sub, err = subscribe(ctx, cfg.BaseURL, seed.ChallengeID, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("live subscription failed: %w", err)
		}
		defer sub.Close()
	}

	subs := generateSubmissions(cfg, seed, rng)
	accepted := submitPerformances(ctx, cfg, client, subs, &stats)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	accepted, err = mutatePerformances(ctx, cfg, client, accepted, rng, &stats)
	if err != nil {
		return nil, fmt.Errorf("mutation failed: %w", err)
	}

	report := &Report{
		ChallengeID:  seed.ChallengeID,
		Expected:     expectedTotals(seed, accepted),
		Participants: seed.Participants,
		Criteria:     seed.Criteria,
	}

	board, err := client.getLeaderboard(ctx, seed.ChallengeID, false)
	if err != nil {
		return nil, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	report.Leaderboard = board
	report.Issues = verifyLeaderboard(board, report.Expected)

	if sub != nil {
		matched, err := awaitLiveBoard(ctx, cfg, sub, board)
		if err != nil {
			return nil, err
		}
		report.LiveMatched = matched
		_, stats.LiveUpdates = sub.snapshot()
		if !matched {
			report.Issues = append(report.Issues, "live leaderboard did not converge to the HTTP leaderboard")
		}
	}

	stats.LeaderboardRows = len(board)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	report.Stats = stats

	if cfg.OutputFile != "" {
		if err := saveReport(cfg.OutputFile, report); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}
	displayFinalStats(ctx, report)

	if len(report.Issues) > 0 {
		return report, fmt.Errorf("%w: %s", ErrVerification, strings.Join(report.Issues, "; "))
	}
	return report, nil
}

// awaitLiveBoard polls the subscriber until its last board equals want or
// SettleTimeout passes, asking for a fresh board on every tick.
func awaitLiveBoard(ctx context.Context, cfg *Config, sub *liveSubscriber, want []types.LeaderboardEntry) (bool, error) {
	deadline := time.NewTimer(cfg.SettleTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if got, _ := sub.snapshot(); sameBoard(got, want) {
			return true, nil
		}
		if sub.isConfirmed() {
			if err := sub.send(types.MsgRequestLeaderboard); err != nil {
				return false, fmt.Errorf("request leaderboard: %w", err)
			}
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
		}
	}
}

func saveReport(path string, report *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), directoryPermission); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return os.WriteFile(path, data, reportPermission)
}

func displayFinalStats(ctx context.Context, report *Report) {
	s := report.Stats
	rate := 0.0
	if s.Duration > 0 {
		rate = float64(s.Succeeded) / s.Duration.Seconds()
	}
	fields := []logger.Field{
		logger.String("challengeId", report.ChallengeID),
		logger.Int("submitted", s.Submitted),
		logger.Int("succeeded", s.Succeeded),
		logger.Int("failed", s.Failed),
		logger.Int("updated", s.Updated),
		logger.Int("deleted", s.Deleted),
		logger.Int("liveUpdates", s.LiveUpdates),
		logger.Int("leaderboardRows", s.LeaderboardRows),
		logger.Duration("duration", s.Duration),
		logger.Float64("perSecond", rate),
		logger.Int("issues", len(report.Issues)),
	}
	log := logger.Named("simulate")
	if len(report.Issues) > 0 {
		log.Error(ctx, "simulation finished with issues", append(fields, logger.Any("details", report.Issues))...)
		return
	}
	log.Info(ctx, "simulation passed", fields...)
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Participants <= 0 {
		c.Participants = defaultParticipants
	}
	if c.Criteria <= 0 {
		c.Criteria = defaultCriteria
	}
	if c.PerParticipant <= 0 {
		c.PerParticipant = defaultPerParticipant
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = defaultSettleTimeout
	}
}

// IsVerificationFailure reports whether err came from a leaderboard mismatch
// rather than a transport or seeding failure.
func IsVerificationFailure(err error) bool {
	return errors.Is(err, ErrVerification)
}
