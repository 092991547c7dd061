package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/rally/internal/adapters/mq/queue"
	worker "github.com/okian/rally/internal/adapters/mq/worker"
	logging "github.com/okian/rally/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type recorder struct {
	mu    sync.Mutex
	seen  []string
	fails map[string]error
	block chan struct{}
}

func newRecorder() *recorder {
	return &recorder{fails: make(map[string]error)}
}

func (r *recorder) Handle(ctx context.Context, item string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, item)
	return r.fails[item]
}

func (r *recorder) items() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker draining a queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue[string](queue.WithCapacity(100))
		rec := newRecorder()
		w := worker.NewInMemoryWorker[string](q, rec, worker.WithName("delivery"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go w.Run(ctx)

		convey.Convey("When items are enqueued", func() {
			for i := 0; i < 50; i++ {
				convey.So(q.Enqueue(ctx, fmt.Sprintf("game_%d", i)), convey.ShouldBeTrue)
			}
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then they are handled in enqueue order", func() {
				got := rec.items()
				convey.So(len(got), convey.ShouldEqual, 50)
				for i, id := range got {
					convey.So(id, convey.ShouldEqual, fmt.Sprintf("game_%d", i))
				}
			})
		})

		convey.Convey("When the handler fails for one item", func() {
			rec.fails["bad"] = errors.New("boom")
			q.Enqueue(ctx, "bad")
			q.Enqueue(ctx, "good")
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then the worker keeps going", func() {
				convey.So(rec.items(), convey.ShouldResemble, []string{"bad", "good"})
			})
		})

		convey.Convey("When the context is cancelled", func() {
			cancel()

			convey.Convey("Then the worker stops", func() {
				select {
				case <-w.Done():
					convey.So(true, convey.ShouldBeTrue)
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestWorkerShutdownTimeout(t *testing.T) {
	convey.Convey("Given a worker stuck in its handler", t, func() {
		q := queue.NewInMemoryQueue[string]()
		rec := newRecorder()
		rec.block = make(chan struct{})
		defer close(rec.block)

		w := worker.NewInMemoryWorker[string](q, rec, worker.WithLogger(logging.Nop()))
		go w.Run(context.Background())
		q.Enqueue(context.Background(), "slow")

		convey.Convey("When shutdown is bounded by a short deadline", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			err := w.Shutdown(ctx)

			convey.Convey("Then it reports that the worker was stopped", func() {
				convey.So(errors.Is(err, worker.ErrStopped), convey.ShouldBeTrue)
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})
}

func TestHandlerFunc(t *testing.T) {
	convey.Convey("Given a handler func", t, func() {
		var got int
		h := worker.HandlerFunc[int](func(_ context.Context, n int) error {
			got = n
			return nil
		})
		convey.So(h.Handle(context.Background(), 7), convey.ShouldBeNil)
		convey.So(got, convey.ShouldEqual, 7)
	})
}
