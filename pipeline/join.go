package pipeline

import (
	"context"
	"sync"
)

// Join is the completion barrier owned by a consumer's input. Producers are
// registered cumulatively; the input completes once every registered
// producer has signaled. A join with nothing registered never completes on
// its own and must be closed explicitly.
type Join struct {
	mu         sync.Mutex
	registered int
	signaled   int
	closed     bool
	done       chan struct{}
}

// NewJoin creates an empty join.
func NewJoin() *Join {
	return &Join{done: make(chan struct{})}
}

// Register adds n producers to the target.
func (j *Join) Register(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.closed {
		j.registered += n
	}
}

// Signal records that one registered producer completed.
func (j *Join) Signal() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	j.signaled++
	if j.registered > 0 && j.signaled >= j.registered {
		j.closeLocked()
	}
}

// Close completes the join regardless of outstanding producers.
func (j *Join) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.closed {
		j.closeLocked()
	}
}

func (j *Join) closeLocked() {
	j.closed = true
	close(j.done)
}

// Complete reports whether the join has completed.
func (j *Join) Complete() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closed
}

// Done is closed when the join completes.
func (j *Join) Done() <-chan struct{} { return j.done }

// Counts returns the registered and signaled totals.
func (j *Join) Counts() (registered, signaled int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.registered, j.signaled
}

// inlet is a consumer's input: a channel shared by all producers and the
// join that decides when it is exhausted. The channel is never closed;
// producers signal the join after their final send.
type inlet[T any] struct {
	ch   chan Item[T]
	join *Join
}

func newInlet[T any](buffer int) *inlet[T] {
	return &inlet[T]{
		ch:   make(chan Item[T], buffer),
		join: NewJoin(),
	}
}

// next returns the next item, ok=false once the join completed and the
// channel is drained, or the context cause.
func (in *inlet[T]) next(ctx context.Context) (Item[T], bool, error) {
	select {
	case it := <-in.ch:
		return it, true, nil
	case <-in.join.Done():
		select {
		case it := <-in.ch:
			return it, true, nil
		default:
			return Item[T]{}, false, nil
		}
	case <-ctx.Done():
		return Item[T]{}, false, context.Cause(ctx)
	}
}
