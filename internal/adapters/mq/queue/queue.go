// Package queue buffers reward jobs between the API and the worker pool.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/pkg/metrics"
)

const defaultCapacity = 10_000

// Job is the payload flowing through the queue.
type Job = model.RewardJob

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds a job or fails fast with ErrFull or ErrClosed.
	Enqueue(ctx context.Context, j Job) error
	// Dequeue returns the receive side. It is closed by Close once drained.
	Dequeue(ctx context.Context) <-chan Job
	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// Enqueue adds a job without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		return fmt.Errorf("enqueue: %w", err)
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the job channel. Consumers record the dequeue themselves
// through Done.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Job {
	return q.jobs
}

// Done records that a consumer took a job off the queue.
func (q *InMemoryQueue) Done() {
	metrics.RecordQueueDequeue()
	q.observe()
}

func (q *InMemoryQueue) observe() {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Len returns the number of buffered jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.observe()
	return len(q.jobs)
}

// Capacity returns the configured bound.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close stops accepting jobs. Buffered jobs stay readable until drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
