package pipeline

import (
	"context"

	"github.com/kbukum/flowkit/errors"
)

// Source is a producer with no input. It runs when something downstream
// is consumed.
type Source[T any] struct {
	*node
	out *emitter[T]
}

func (s *Source[T]) output() *emitter[T]  { return s.out }
func (s *Source[T]) errorPort() errorPort { return s.out }

// FromFunc creates a source calling next until it reports ok == false.
// An error from next fails the source.
func FromFunc[T any](next func(context.Context) (T, bool, error), opts ...Option) *Source[T] {
	cfg := newSettings("func", opts)
	n := newNode(KindSource, cfg)
	s := &Source[T]{node: n, out: newEmitter[T](n)}
	n.close = s.out.close
	n.run = func(ctx context.Context) error {
		for {
			v, ok, err := next(ctx)
			if ctx.Err() != nil && (err != nil || !ok) {
				return context.Cause(ctx)
			}
			if err != nil {
				return errors.StageFailed(s.name, err)
			}
			if !ok {
				return nil
			}
			if err := s.out.emit(ctx, Value(v)); err != nil {
				return err
			}
		}
	}
	return s
}

// FromSlice creates a source emitting items in order.
func FromSlice[T any](items []T, opts ...Option) *Source[T] {
	i := 0
	return FromFunc(func(context.Context) (T, bool, error) {
		if i >= len(items) {
			var zero T
			return zero, false, nil
		}
		v := items[i]
		i++
		return v, true, nil
	}, append([]Option{WithName("slice")}, opts...)...)
}

// FromChannel creates a source emitting values received from ch until it
// is closed.
func FromChannel[T any](ch <-chan T, opts ...Option) *Source[T] {
	return FromFunc(func(ctx context.Context) (T, bool, error) {
		select {
		case v, ok := <-ch:
			return v, ok, nil
		case <-ctx.Done():
			var zero T
			return zero, false, context.Cause(ctx)
		}
	}, append([]Option{WithName("channel")}, opts...)...)
}

// FromIterator creates a source pulling from it. The iterator is closed
// when it is exhausted or the source stops.
func FromIterator[T any](it Iterator[T], opts ...Option) *Source[T] {
	s := FromFunc(it.Next, append([]Option{WithName("iterator")}, opts...)...)
	run := s.node.run
	s.node.run = func(ctx context.Context) error {
		defer it.Close()
		return run(ctx)
	}
	return s
}
