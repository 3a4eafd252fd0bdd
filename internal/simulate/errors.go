package simulate

import "errors"

var (
	// ErrVerification is returned when the final leaderboard disagrees with
	// the locally computed totals.
	ErrVerification = errors.New("leaderboard verification failed")
	// ErrServiceUnavailable is returned when the health check fails.
	ErrServiceUnavailable = errors.New("service unavailable")
)
