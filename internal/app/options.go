package service

import (
	"runtime"
	"time"

	"github.com/okian/starchallenge/pkg/logger"
)

const (
	defaultQueueSize          = 10_000
	defaultDedupeSize         = 100_000
	defaultStatusSyncInterval = 30 * time.Second
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of reward workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the reward job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many star grant keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithStarDivisor sets the value-to-stars divisor.
func WithStarDivisor(d float64) Option {
	return func(s *Service) {
		if d > 0 {
			s.starDivisor = d
		}
	}
}

// WithWinnerCount sets how many winners are selected when the caller passes zero.
func WithWinnerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.winnerCount = n
		}
	}
}

// WithIdempotentWinners toggles re-finalization returning the existing winners.
func WithIdempotentWinners(enabled bool) Option {
	return func(s *Service) { s.idempotentWinners = enabled }
}

// WithIdempotentRewards toggles one reward per (user, tier).
func WithIdempotentRewards(enabled bool) Option {
	return func(s *Service) { s.idempotentRewards = enabled }
}

// WithRecomputeConcurrency bounds parallel score recomputation of a challenge.
func WithRecomputeConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recomputeConcurrency = n
		}
	}
}

// WithSnapshotDelay sets the delay before a new subscriber receives its snapshot.
func WithSnapshotDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.snapshotDelay = d
		}
	}
}

// WithStatusSyncInterval sets how often challenge statuses are persisted.
// Zero disables the background sync.
func WithStatusSyncInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.statusSyncInterval = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func defaults(s *Service) {
	s.workerCount = runtime.NumCPU()
	s.queueSize = defaultQueueSize
	s.dedupeSize = defaultDedupeSize
	s.idempotentWinners = true
	s.idempotentRewards = true
	s.snapshotDelay = -1
	s.statusSyncInterval = defaultStatusSyncInterval
	s.now = time.Now
}
