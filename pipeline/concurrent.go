package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kbukum/flowkit/logger"
)

// NewConcurrentStage creates a stage running fn on up to concurrency items
// at once. Output order is not preserved. The work queue is unbounded
// unless WithQueueLimit is given; a fatal item failure destroys the whole
// stage. concurrency < 1 is treated as 1.
func NewConcurrentStage[I, O any](name string, fn TransformFunc[I, O], concurrency int, opts ...Option) *Stage[I, O] {
	opts = append([]Option{WithConcurrency(concurrency)}, opts...)
	s := newStage(KindConcurrent, name, fn, opts)
	if s.cfg.concurrency < 1 {
		s.cfg.concurrency = 1
	}
	s.node.concurrency = s.cfg.concurrency
	s.node.run = s.runConcurrent
	return s
}

// workQueue is the FIFO between the dispatcher and the workers, plus the
// live-worker count. Both are guarded by mu.
type workQueue[T any] struct {
	mu    sync.Mutex
	items []Item[T]
	live  int

	workers int
	limit   int
	space   chan struct{}
	queued  *atomic.Int64
}

// enqueue appends it and reports whether a new worker should be started.
func (q *workQueue[T]) enqueue(it Item[T]) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, it)
	q.queued.Store(int64(len(q.items)))
	if q.live < q.workers {
		q.live++
		return true
	}
	return false
}

// dequeue pops the next item. When the queue is empty or ctx ended the
// calling worker is retired and ok is false.
func (q *workQueue[T]) dequeue(ctx context.Context) (Item[T], bool) {
	q.mu.Lock()
	if len(q.items) == 0 || ctx.Err() != nil {
		q.live--
		q.mu.Unlock()
		return Item[T]{}, false
	}
	it := q.items[0]
	q.items[0] = Item[T]{}
	q.items = q.items[1:]
	q.queued.Store(int64(len(q.items)))
	q.mu.Unlock()

	select {
	case q.space <- struct{}{}:
	default:
	}
	return it, true
}

func (q *workQueue[T]) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// waitForSpace blocks while a bounded queue is full.
func (q *workQueue[T]) waitForSpace(ctx context.Context) error {
	if q.limit <= 0 {
		return nil
	}
	for {
		q.mu.Lock()
		n := len(q.items)
		q.mu.Unlock()
		if n < q.limit {
			return nil
		}
		select {
		case <-q.space:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

func (s *Stage[I, O]) runConcurrent(parent context.Context) error {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	q := &workQueue[I]{
		workers: s.cfg.concurrency,
		limit:   s.cfg.queueLimit,
		space:   make(chan struct{}, 1),
		queued:  &s.queued,
	}

	var (
		wg       sync.WaitGroup
		failOnce sync.Once
		fatal    error
	)
	fail := func(err error) {
		failOnce.Do(func() {
			fatal = err
			cancel(err)
		})
	}

	worker := func() {
		defer wg.Done()
		for {
			it, ok := q.dequeue(ctx)
			if !ok {
				return
			}
			res, emit, err := s.process(ctx, it)
			if err == nil && emit {
				err = s.out.emit(ctx, res)
			}
			if err != nil {
				fail(err)
			}
		}
	}

	s.log.Debug("worker pool ready", logger.Fields(
		logger.FieldConcurrency, s.cfg.concurrency,
		"queue_limit", s.cfg.queueLimit,
	))

	var stopped error
	for {
		if err := q.waitForSpace(ctx); err != nil {
			stopped = err
			break
		}
		it, ok, err := s.in.next(ctx)
		if err != nil {
			stopped = err
			break
		}
		if !ok {
			break
		}
		s.received.Add(1)
		if q.enqueue(it) {
			wg.Add(1)
			go worker()
		}
	}

	wg.Wait()
	switch {
	case fatal != nil:
		return fatal
	case stopped != nil:
		return stopped
	case q.pending() > 0:
		// Workers retired on abort with items still queued.
		return context.Cause(parent)
	}
	return nil
}
