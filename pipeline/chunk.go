package pipeline

import (
	"context"
	"time"
)

// Chunk groups values into slices of up to size, or whatever arrived
// within timeout of a chunk's first value, whichever comes first. The last
// partial chunk is flushed when input completes. size=0 means collect
// until timeout; timeout=0 means collect until size. Both zero defaults to
// size=1. Records are passed through as they arrive.
func Chunk[T any](name string, size int, timeout time.Duration, opts ...Option) *Stage[T, []T] {
	if size <= 0 && timeout <= 0 {
		size = 1
	}
	s := newStage[T, []T](KindStage, name, nil, opts)
	s.node.run = func(ctx context.Context) error {
		var (
			chunk []T
			timer *time.Timer
			fire  <-chan time.Time
		)
		flush := func() error {
			if timer != nil {
				timer.Stop()
				fire = nil
			}
			if len(chunk) == 0 {
				return nil
			}
			out := chunk
			chunk = nil
			return s.out.emit(ctx, Value(out))
		}
		handle := func(it Item[T]) error {
			s.received.Add(1)
			if IsStreamError(it) {
				return s.out.emit(ctx, retype[[]T](it))
			}
			chunk = append(chunk, it.value)
			if size > 0 && len(chunk) >= size {
				return flush()
			}
			if timeout > 0 && len(chunk) == 1 {
				if timer == nil {
					timer = time.NewTimer(timeout)
				} else {
					timer.Reset(timeout)
				}
				fire = timer.C
			}
			return nil
		}

		for {
			select {
			case it := <-s.in.ch:
				if err := handle(it); err != nil {
					return err
				}
			case <-fire:
				fire = nil
				if err := flush(); err != nil {
					return err
				}
			case <-s.in.join.Done():
				for {
					select {
					case it := <-s.in.ch:
						if err := handle(it); err != nil {
							return err
						}
					default:
						return flush()
					}
				}
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		}
	}
	return s
}

// Flatten emits the elements of every slice it receives, in order.
func Flatten[T any](name string, opts ...Option) *Stage[[]T, T] {
	s := newStage[[]T, T](KindStage, name, nil, opts)
	s.node.run = func(ctx context.Context) error {
		for {
			it, ok, err := s.in.next(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			s.received.Add(1)
			if IsStreamError(it) {
				if err := s.out.emit(ctx, retype[T](it)); err != nil {
					return err
				}
				continue
			}
			for _, v := range it.value {
				if err := s.out.emit(ctx, Value(v)); err != nil {
					return err
				}
			}
		}
	}
	return s
}
