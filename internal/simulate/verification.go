package simulate

import (
	"fmt"
	"math"

	"github.com/okian/starchallenge/internal/domain/types"
)

// verifyLeaderboard checks a board against expected totals: every participant
// appears once, ranks run 1..N, scores never increase down the board and each
// score matches its expected total.
func verifyLeaderboard(entries []types.LeaderboardEntry, totals map[string]float64) []string {
	var issues []string

	if len(entries) != len(totals) {
		issues = append(issues, fmt.Sprintf("expected %d entries, got %d", len(totals), len(entries)))
	}

	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.Rank != i+1 {
			issues = append(issues, fmt.Sprintf("position %d has rank %d", i+1, e.Rank))
		}
		if _, dup := seen[e.ParticipantID]; dup {
			issues = append(issues, fmt.Sprintf("participant %s listed twice", e.ParticipantID))
		}
		seen[e.ParticipantID] = struct{}{}

		if i > 0 && e.TotalScore > entries[i-1].TotalScore+scoreTolerance {
			issues = append(issues, fmt.Sprintf("rank %d (%.4f) scores above rank %d (%.4f)",
				e.Rank, e.TotalScore, entries[i-1].Rank, entries[i-1].TotalScore))
		}

		want, ok := totals[e.ParticipantID]
		if !ok {
			issues = append(issues, fmt.Sprintf("unexpected participant %s", e.ParticipantID))
			continue
		}
		if !closeEnough(e.TotalScore, want) {
			issues = append(issues, fmt.Sprintf("participant %s scored %.4f, expected %.4f",
				e.ParticipantID, e.TotalScore, want))
		}
	}

	for id := range totals {
		if _, ok := seen[id]; !ok {
			issues = append(issues, fmt.Sprintf("participant %s missing from leaderboard", id))
		}
	}
	return issues
}

// sameBoard reports whether two boards list the same participants in the same
// order with matching scores.
func sameBoard(a, b []types.LeaderboardEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ParticipantID != b[i].ParticipantID || a[i].Rank != b[i].Rank ||
			!closeEnough(a[i].TotalScore, b[i].TotalScore) {
			return false
		}
	}
	return true
}

// closeEnough compares with a tolerance relative to magnitude, since totals
// are sums of products.
func closeEnough(a, b float64) bool {
	diff := math.Abs(a - b)
	return diff <= scoreTolerance || diff <= scoreTolerance*math.Max(math.Abs(a), math.Abs(b))
}
