package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/flowkit/errors"
)

// Iterator provides pull-based sequential access to a stream of values.
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, err) when exhausted,
	// where err is the producer's fatal error, if any.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

// sink is the outlet a terminal call reads from.
type sink[T any] struct {
	out      chan Item[T]
	gone     chan struct{}
	goneOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *sink[T]) Next(ctx context.Context) (Item[T], bool, error) {
	select {
	case it, open := <-s.out:
		if !open {
			s.mu.Lock()
			defer s.mu.Unlock()
			return Item[T]{}, false, s.err
		}
		return it, true, nil
	case <-ctx.Done():
		return Item[T]{}, false, ctx.Err()
	}
}

// Close detaches the iterator. A producer left without consumers stops
// with DownstreamClosed.
func (s *sink[T]) Close() error {
	s.goneOnce.Do(func() { close(s.gone) })
	return nil
}

// Iter starts p and everything upstream of it and returns an iterator over
// its items. A producer can be consumed by a terminal call only once, and
// only before it started. A stage nothing feeds is rejected; an error
// channel without producers is accepted and ends when it is closed.
func Iter[T any](p Producer[T]) (Iterator[Item[T]], error) {
	if isNilNode(p) {
		return nil, errors.InvalidTopology("producer is nil")
	}
	if p.core().started() {
		return nil, errors.InvalidTopology(fmt.Sprintf("stage %s already started", p.Name()))
	}
	if err := checkFed(p); err != nil {
		return nil, err
	}

	s := &sink[T]{
		out:  make(chan Item[T]),
		gone: make(chan struct{}),
	}
	p.output().add(&outlet[T]{
		name: "iterator",
		data: true,
		send: func(ctx context.Context, it Item[T]) error {
			select {
			case s.out <- it:
				return nil
			case <-s.gone:
				return errConsumerGone
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		},
		close: func(err error) {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			close(s.out)
		},
	})
	p.core().start()
	return s, nil
}

// ForEach calls fn for every item of p. An error from fn stops p.
func ForEach[T any](ctx context.Context, p Producer[T], fn func(context.Context, Item[T]) error) error {
	it, err := Iter(p)
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		item, ok, err := it.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				canceled := errors.Canceled(p.Name(), ctx.Err())
				p.Abort(canceled)
				return canceled
			}
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(ctx, item); err != nil {
			p.Abort(errors.Aborted(p.Name(), err))
			return err
		}
	}
}

// CollectItems runs p to completion and returns every item, values and
// records alike. Items received before a failure are returned with it.
func CollectItems[T any](ctx context.Context, p Producer[T]) ([]Item[T], error) {
	var items []Item[T]
	err := ForEach(ctx, p, func(_ context.Context, it Item[T]) error {
		items = append(items, it)
		return nil
	})
	return items, err
}

// Collect runs p to completion and returns its values. Records are
// dropped; use CollectItems or an error channel to observe them.
func Collect[T any](ctx context.Context, p Producer[T]) ([]T, error) {
	var values []T
	err := ForEach(ctx, p, func(_ context.Context, it Item[T]) error {
		if !IsStreamError(it) {
			values = append(values, it.value)
		}
		return nil
	})
	return values, err
}

// Drain runs p to completion, discarding its output.
func Drain[T any](ctx context.Context, p Producer[T]) error {
	return ForEach(ctx, p, func(context.Context, Item[T]) error { return nil })
}

// Wait starts nodes and everything upstream of them, then blocks until
// all completed. Nodes without a consumer get one that discards their
// output. On the first fatal error the other nodes are aborted with
// ABORTED and the error is returned; when ctx ends they are aborted with
// CANCELED and ctx.Err() is returned.
func Wait(ctx context.Context, nodes ...Node) error {
	for i, n := range nodes {
		if isNilNode(n) {
			return errors.InvalidTopology(fmt.Sprintf("node %d is nil", i))
		}
		if err := checkFed(n); err != nil {
			return err
		}
	}
	for _, n := range nodes {
		if err := n.errorPort().attachDiscard(); err != nil {
			return err
		}
	}
	for _, n := range nodes {
		n.core().start()
	}

	stop := make(chan struct{})
	defer close(stop)
	results := make(chan error, len(nodes))
	for _, n := range nodes {
		go func(n Node) {
			select {
			case <-n.Done():
				results <- n.Err()
			case <-stop:
			}
		}(n)
	}

	for range nodes {
		select {
		case err := <-results:
			if err != nil {
				abortRunning(nodes, func(n Node) error { return errors.Aborted(n.Name(), err) })
				return err
			}
		case <-ctx.Done():
			abortRunning(nodes, func(n Node) error { return errors.Canceled(n.Name(), ctx.Err()) })
			return ctx.Err()
		}
	}
	return nil
}

func abortRunning(nodes []Node, reason func(Node) error) {
	for _, n := range nodes {
		select {
		case <-n.Done():
		default:
			n.Abort(reason(n))
		}
	}
}

// checkFed rejects a stage without registered producers, which would wait
// for input forever. Sources have no input, and error channels may be
// completed with Close.
func checkFed(n Node) error {
	in, ok := n.(interface{ Input() *Join })
	if !ok || n.Kind() == KindErrorChannel {
		return nil
	}
	j := in.Input()
	if reg, _ := j.Counts(); reg == 0 && !j.Complete() {
		return errors.InvalidTopology(fmt.Sprintf("stage %s has no producers", n.Name()))
	}
	return nil
}
