package rewards

import (
	"time"

	"github.com/okian/starchallenge/internal/domain/keylock"
	"github.com/okian/starchallenge/pkg/logger"
)

// DefaultStarDivisor converts performance values to stars: floor(value / 10).
const DefaultStarDivisor = 10

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

// WithStarDivisor overrides DefaultStarDivisor. Non-positive values are ignored.
func WithStarDivisor(d float64) Option {
	return func(e *Engine) {
		if d > 0 {
			e.divisor = d
		}
	}
}

// WithIdempotentRewards controls whether a tier is rewarded once per user
// (true, the default) or on every evaluation.
func WithIdempotentRewards(enabled bool) Option {
	return func(e *Engine) {
		e.idempotent = enabled
	}
}

// WithLocker shares the per-user lock.
func WithLocker(l *keylock.Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locks = l
		}
	}
}

// WithClock overrides the time source for ledger entries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
