package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/starchallenge/internal/adapters/mq/queue"
	worker "github.com/okian/starchallenge/internal/adapters/mq/worker"
	"github.com/okian/starchallenge/internal/domain/model"
	logging "github.com/okian/starchallenge/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{fail: map[string]error{}}
}

func (r *recordingProcessor) Process(_ context.Context, j worker.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j.PerformanceID == "explode" {
		panic("bad job")
	}
	if err, ok := r.fail[j.PerformanceID]; ok {
		return err
	}
	r.seen = append(r.seen, j.PerformanceID)
	return nil
}

func (r *recordingProcessor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestPool(t *testing.T) {
	if err := logging.Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	convey.Convey("Given a pool of workers on a queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(500))
		proc := newRecordingProcessor()
		pool := worker.NewPool(4, q, proc)
		pool.Start(ctx)

		convey.Convey("When jobs are enqueued", func() {
			for i := 0; i < 100; i++ {
				convey.So(q.Enqueue(ctx, model.RewardJob{PerformanceID: fmt.Sprintf("perf-%d", i)}), convey.ShouldBeNil)
			}

			convey.Convey("Then every job is processed exactly once", func() {
				convey.So(waitFor(func() bool { return proc.count() == 100 }), convey.ShouldBeTrue)
				convey.So(pool.Processed(), convey.ShouldEqual, 100)
				convey.So(pool.Size(), convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When a job fails or panics", func() {
			proc.fail["bad"] = errors.New("boom")
			convey.So(q.Enqueue(ctx, model.RewardJob{PerformanceID: "bad"}), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, model.RewardJob{PerformanceID: "explode"}), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, model.RewardJob{PerformanceID: "good"}), convey.ShouldBeNil)

			convey.Convey("Then the workers keep going", func() {
				convey.So(waitFor(func() bool { return pool.Failed() == 2 && proc.count() == 1 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the pool shuts down", func() {
			for i := 0; i < 20; i++ {
				_ = q.Enqueue(ctx, model.RewardJob{PerformanceID: fmt.Sprintf("late-%d", i)})
			}
			err := pool.Shutdown(context.Background())

			convey.Convey("Then buffered jobs are drained and the queue is closed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(proc.count(), convey.ShouldEqual, 20)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(errors.Is(q.Enqueue(ctx, model.RewardJob{}), queue.ErrClosed), convey.ShouldBeTrue)
			})
		})
	})
}

func TestWorker_ProcessorFunc(t *testing.T) {
	if err := logging.Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	convey.Convey("Given a single worker with a func processor", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		var got string
		w := worker.NewInMemoryWorker(q, worker.ProcessorFunc(func(_ context.Context, j worker.Job) error {
			got = j.PerformanceID
			return nil
		}), worker.WithName("solo"))

		convey.So(q.Enqueue(context.Background(), model.RewardJob{PerformanceID: "p1"}), convey.ShouldBeNil)
		convey.So(q.Close(), convey.ShouldBeNil)
		w.Run(context.Background())

		convey.Convey("Then Run returns once the closed queue is drained", func() {
			<-w.Done()
			convey.So(got, convey.ShouldEqual, "p1")
		})
	})
}
