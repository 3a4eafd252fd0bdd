package repository

import (
	"time"

	"github.com/okian/starchallenge/pkg/logger"
)

// Option applies a configuration option to the GormStore.
type Option func(*GormStore)

// WithClock overrides the time source used for generated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *GormStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *GormStore) {
		if l != nil {
			s.log = l
		}
	}
}
