package pipeline

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
)

// route selects which items an outlet accepts.
type route int

const (
	routeAll route = iota
	routeValues
	routeErrors
)

var errConsumerGone = stderrors.New("consumer gone")

// outlet is one edge leaving a producer.
type outlet[T any] struct {
	name  string
	route route
	// data edges keep the producer alive; error-channel edges do not.
	data   bool
	target *node
	send   func(ctx context.Context, it Item[T]) error
	close  func(err error)
	dead   bool
}

func (o *outlet[T]) accepts(it Item[T]) bool {
	switch o.route {
	case routeValues:
		return !IsStreamError(it)
	case routeErrors:
		return IsStreamError(it)
	default:
		return true
	}
}

// sendTo delivers into a consumer's inlet until the consumer finishes.
func sendTo[T any](in *inlet[T], gone <-chan struct{}) func(context.Context, Item[T]) error {
	return func(ctx context.Context, it Item[T]) error {
		select {
		case in.ch <- it:
			return nil
		case <-gone:
			return errConsumerGone
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

// emitter fans a producer's items out to its outlets. Sends are serialized
// so every consumer observes the same order.
type emitter[T any] struct {
	owner *node

	mu      sync.Mutex
	outlets []*outlet[T]
}

func newEmitter[T any](owner *node) *emitter[T] {
	return &emitter[T]{owner: owner}
}

func (e *emitter[T]) add(o *outlet[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outlets = append(e.outlets, o)
}

// emit delivers it to every live outlet that accepts it. A producer whose
// data outlets are all gone fails with DownstreamClosed.
func (e *emitter[T]) emit(ctx context.Context, it Item[T]) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	hadData, liveData := false, 0
	for _, o := range e.outlets {
		if o.data {
			hadData = true
		}
		if !o.dead && o.accepts(it) {
			if err := o.send(ctx, it); err != nil {
				if !stderrors.Is(err, errConsumerGone) {
					return err
				}
				o.dead = true
				e.owner.log.Debug("consumer detached", logger.Fields("consumer", o.name))
			}
		}
		if o.data && !o.dead {
			liveData++
		}
	}
	if hadData && liveData == 0 {
		return errors.DownstreamClosed(e.owner.name)
	}
	e.owner.emitted.Add(1)
	return nil
}

// close ends every outlet with the producer's final error.
func (e *emitter[T]) close(err error) {
	e.mu.Lock()
	outlets := append([]*outlet[T](nil), e.outlets...)
	e.mu.Unlock()

	for _, o := range outlets {
		o.close(err)
	}
}

func (e *emitter[T]) hasData() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range e.outlets {
		if o.data {
			return true
		}
	}
	return false
}

// routeErrors adds an error route into ch unless one exists. It reports
// whether a route was added.
func (e *emitter[T]) routeErrors(ch *ErrorChannel) (bool, error) {
	if e.owner.started() {
		return false, errors.InvalidTopology("stage " + e.owner.name + " already started")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	target := ch.core()
	for _, o := range e.outlets {
		if o.route == routeErrors && o.target == target {
			return false, nil
		}
	}

	in := ch.input()
	in.join.Register(1)
	deliver := sendTo(in, target.done)
	e.outlets = append(e.outlets, &outlet[T]{
		name:   target.name,
		route:  routeErrors,
		target: target,
		send: func(ctx context.Context, it Item[T]) error {
			return deliver(ctx, Value(it.err))
		},
		// A failed producer has still completed from the channel's view.
		close: func(error) { in.join.Signal() },
	})
	return true, nil
}

// attachDiscard gives an unstarted producer with no data consumer a sink
// so it can run to completion.
func (e *emitter[T]) attachDiscard() error {
	if e.owner.started() || e.hasData() {
		return nil
	}
	e.add(&outlet[T]{
		name:  "discard",
		data:  true,
		send:  func(context.Context, Item[T]) error { return nil },
		close: func(error) {},
	})
	return nil
}
