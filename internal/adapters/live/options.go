package live

import (
	"time"

	"github.com/okian/starchallenge/pkg/logger"
)

const defaultSnapshotDelay = 100 * time.Millisecond

// Option applies a configuration option to the Broker.
type Option func(*Broker)

// WithLogger sets the broker logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.log = l
		}
	}
}

// WithSnapshotDelay sets how long after a subscription the initial snapshot
// is sent. Zero sends it as soon as the scheduling goroutine runs.
func WithSnapshotDelay(d time.Duration) Option {
	return func(b *Broker) {
		if d >= 0 {
			b.snapshotDelay = d
		}
	}
}

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		if now != nil {
			b.now = now
		}
	}
}
