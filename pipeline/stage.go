package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/resilience"
)

// ErrPanic wraps a value recovered from a panicking stage function.
var ErrPanic = stderrors.New("stage function panicked")

var errNilTransform = stderrors.New("stage has no transform function")

// TransformFunc maps one input to at most one output. ok == false means
// the item is filtered out.
type TransformFunc[I, O any] func(ctx context.Context, in I) (out O, ok bool, err error)

// Map adapts a function that always produces an output.
func Map[I, O any](fn func(context.Context, I) (O, error)) TransformFunc[I, O] {
	return func(ctx context.Context, in I) (O, bool, error) {
		out, err := fn(ctx, in)
		return out, err == nil, err
	}
}

// Sync adapts a context-free function.
func Sync[I, O any](fn func(I) (O, error)) TransformFunc[I, O] {
	return func(_ context.Context, in I) (O, bool, error) {
		out, err := fn(in)
		return out, err == nil, err
	}
}

// Filter keeps the items matching pred.
func Filter[T any](pred func(T) bool) TransformFunc[T, T] {
	return func(_ context.Context, in T) (T, bool, error) {
		return in, pred(in), nil
	}
}

// Stage consumes items of type I and produces items of type O. Records
// reaching a stage are passed through without calling its function.
type Stage[I, O any] struct {
	*node
	in  *inlet[I]
	out *emitter[O]
	fn  TransformFunc[I, O]
	cfg *settings
}

// NewStage creates a stage that handles one item at a time and preserves
// input order.
func NewStage[I, O any](name string, fn TransformFunc[I, O], opts ...Option) *Stage[I, O] {
	s := newStage(KindStage, name, fn, opts)
	s.node.run = s.runSequential
	return s
}

func newStage[I, O any](kind Kind, name string, fn TransformFunc[I, O], opts []Option) *Stage[I, O] {
	cfg := newSettings(name, opts)
	if fn == nil {
		fn = func(context.Context, I) (O, bool, error) {
			var zero O
			return zero, false, errNilTransform
		}
	}
	n := newNode(kind, cfg)
	s := &Stage[I, O]{
		node: n,
		in:   newInlet[I](cfg.buffer),
		out:  newEmitter[O](n),
		fn:   fn,
		cfg:  cfg,
	}
	n.close = s.out.close
	return s
}

func (s *Stage[I, O]) input() *inlet[I]     { return s.in }
func (s *Stage[I, O]) output() *emitter[O]  { return s.out }
func (s *Stage[I, O]) errorPort() errorPort { return s.out }
func (s *Stage[I, O]) accepts(src Node) bool {
	_, ok := src.(Producer[I])
	return ok
}

func (s *Stage[I, O]) linkFrom(src Node, errCh *ErrorChannel) error {
	p, ok := src.(Producer[I])
	if !ok {
		return typeMismatch(src, s)
	}
	return link[I](p, s, errCh)
}

// Input returns the join that decides when this stage's input is complete.
func (s *Stage[I, O]) Input() *Join { return s.in.join }

func (s *Stage[I, O]) runSequential(ctx context.Context) error {
	for {
		it, ok, err := s.in.next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		s.received.Add(1)

		res, emit, err := s.process(ctx, it)
		if err != nil {
			return err
		}
		if emit {
			if err := s.out.emit(ctx, res); err != nil {
				return err
			}
		}
	}
}

// process applies the transform and the error policy to one item. It
// returns the item to emit, whether to emit it, and a fatal error.
func (s *Stage[I, O]) process(ctx context.Context, it Item[I]) (Item[O], bool, error) {
	if IsStreamError(it) {
		return retype[O](it), true, nil
	}

	started := time.Now()
	callCtx := ctx
	var span trace.Span
	if s.cfg.tracing {
		callCtx, span = observability.StartItemSpan(ctx, s.name, s.id)
	}
	if s.cfg.metrics != nil {
		s.cfg.metrics.ItemStarted(ctx, s.name)
	}

	s.inFlight.Add(1)
	out, ok, err := s.invoke(callCtx, it.value)
	s.inFlight.Add(-1)

	res, emit, outcome, fatal := s.resolve(ctx, it.value, out, ok, err)

	if s.cfg.metrics != nil {
		s.cfg.metrics.ItemFinished(ctx, s.name, outcome, time.Since(started))
		if fatal != nil {
			s.cfg.metrics.StageFailed(ctx, s.name, string(errors.ErrCodeStageFailed))
		}
	}
	if span != nil {
		observability.EndItemSpan(span, outcome, err)
	}
	return res, emit, fatal
}

func (s *Stage[I, O]) resolve(ctx context.Context, in I, out O, ok bool, err error) (Item[O], bool, observability.Outcome, error) {
	switch {
	case err == nil && ok:
		return Value(out), true, observability.OutcomeEmitted, nil
	case err == nil:
		s.skipped.Add(1)
		return Item[O]{}, false, observability.OutcomeSkipped, nil
	case ctx.Err() != nil:
		return Item[O]{}, false, observability.OutcomeFailed, context.Cause(ctx)
	case s.cfg.ignore:
		s.ignored.Add(1)
		s.log.Debug("item error ignored", logger.Fields(logger.FieldError, err.Error()))
		return Item[O]{}, false, observability.OutcomeIgnored, nil
	case s.cfg.forward:
		s.forwarded.Add(1)
		s.log.Debug("item error forwarded", logger.Fields(logger.FieldError, err.Error()))
		return Failed[O](&StreamError{
			Err:     err,
			Data:    s.format(in),
			Stage:   s.name,
			StageID: s.id,
		}), true, observability.OutcomeForwarded, nil
	default:
		return Item[O]{}, false, observability.OutcomeFailed, errors.StageFailed(s.name, err)
	}
}

type callResult[O any] struct {
	out O
	ok  bool
}

// invoke runs the transform behind the configured rate limiter, bulkhead,
// circuit breaker and retry.
func (s *Stage[I, O]) invoke(ctx context.Context, in I) (O, bool, error) {
	call := func(ctx context.Context) (callResult[O], error) {
		if s.cfg.limiter != nil {
			if err := s.cfg.limiter.Wait(ctx); err != nil {
				return callResult[O]{}, err
			}
		}
		if s.cfg.bulkhead != nil {
			if err := s.cfg.bulkhead.Acquire(ctx); err != nil {
				return callResult[O]{}, err
			}
			defer s.cfg.bulkhead.Release()
		}
		var r callResult[O]
		run := func(ctx context.Context) error {
			var err error
			r.out, r.ok, err = safeCall(ctx, s.fn, in)
			return err
		}
		var err error
		if s.cfg.breaker != nil {
			err = s.cfg.breaker.Execute(ctx, run)
		} else {
			err = run(ctx)
		}
		return r, err
	}

	var (
		r   callResult[O]
		err error
	)
	if s.cfg.retry != nil {
		r, err = resilience.Retry(ctx, *s.cfg.retry, call)
	} else {
		r, err = call(ctx)
	}
	return r.out, r.ok, err
}

func safeCall[I, O any](ctx context.Context, fn TransformFunc[I, O], in I) (out O, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero O
			out, ok, err = zero, false, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(ctx, in)
}

// format renders in for a record, falling back to the raw input.
func (s *Stage[I, O]) format(in I) (data any) {
	if s.cfg.formatter == nil {
		return in
	}
	defer func() {
		if r := recover(); r != nil {
			data = in
		}
	}()
	formatted, err := s.cfg.formatter(in)
	if err != nil {
		return in
	}
	return formatted
}
