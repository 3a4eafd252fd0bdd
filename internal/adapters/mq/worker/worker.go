// Package worker runs reward jobs off the queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/starchallenge/internal/adapters/mq/queue"
	"github.com/okian/starchallenge/pkg/logger"
	"github.com/okian/starchallenge/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Job is what workers read off the queue.
type Job = queue.Job

// Processor handles one job.
type Processor interface {
	Process(ctx context.Context, j Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, j Job) error

func (f ProcessorFunc) Process(ctx context.Context, j Job) error { return f(ctx, j) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// doneRecorder is implemented by queues that track dequeues.
type doneRecorder interface {
	Done()
}

// InMemoryWorker drains the queue until it is closed or ctx ends.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string
	logger    logger.Logger

	processed *atomic.Int64
	failed    *atomic.Int64
	done      chan struct{}
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, p Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: p,
		name:      "worker",
		logger:    logger.Get().Named("worker"),
		processed: &atomic.Int64{},
		failed:    &atomic.Int64{},
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes jobs until the queue channel closes or ctx is cancelled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if r, ok := w.queue.(doneRecorder); ok {
				r.Done()
			}
			w.handle(ctx, j)
		}
	}
}

func (w *InMemoryWorker) handle(ctx context.Context, j Job) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := w.process(ctx, j); err != nil {
		w.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "process_error")
		w.logger.Error(ctx, "reward job failed",
			logger.String("worker", w.name),
			logger.String("performanceId", j.PerformanceID),
			logger.Error(err),
		)
		return
	}
	w.processed.Add(1)
}

// process converts a processor panic into an error so one bad job cannot stop the worker.
func (w *InMemoryWorker) process(ctx context.Context, j Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processor.Process(ctx, j)
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Pool manages a fixed set of workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	processed atomic.Int64
	failed    atomic.Int64
	startOnce sync.Once
	started   atomic.Bool

	logger logger.Logger
}

// NewPool creates workerCount workers. Zero or less means runtime.NumCPU().
func NewPool(workerCount int, q Queue, p Processor) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(q, p, WithName("worker-"+strconv.Itoa(i)))
		w.processed = &pool.processed
		w.failed = &pool.failed
		pool.workers[i] = w
	}
	return pool
}

// Start launches every worker once.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for _, w := range p.workers {
			go w.Run(ctx)
		}
		p.started.Store(true)
		metrics.UpdateWorkerActiveCount(len(p.workers))
		p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
	})
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns how many jobs completed successfully.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed returns how many jobs returned an error.
func (p *Pool) Failed() int64 { return p.failed.Load() }

// Shutdown closes the queue, lets workers drain it and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if !p.started.Load() {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
