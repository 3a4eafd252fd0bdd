package ranking

import (
	"time"

	"github.com/okian/starchallenge/pkg/logger"
)

// DefaultWinnerCount is used when SelectWinners is asked for zero winners.
const DefaultWinnerCount = 3

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithIdempotentWinners controls whether finalizing a challenge twice keeps
// the first winners (true, the default) or appends a new set.
func WithIdempotentWinners(enabled bool) Option {
	return func(e *Engine) {
		e.idempotentWinners = enabled
	}
}

// WithDefaultWinnerCount overrides DefaultWinnerCount.
func WithDefaultWinnerCount(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.defaultCount = n
		}
	}
}

// WithClock overrides the time source stamped on statistics.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
