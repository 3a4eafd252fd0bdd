package scoring

import (
	"github.com/okian/starchallenge/internal/domain/keylock"
	"github.com/okian/starchallenge/pkg/logger"
)

const defaultRecomputeConcurrency = 8

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

// WithLocker shares a per-participant lock with other writers of the total score.
func WithLocker(l *keylock.Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locks = l
		}
	}
}

// WithRecomputeConcurrency bounds how many participants RecomputeChallenge scores at once.
func WithRecomputeConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}
