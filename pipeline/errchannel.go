package pipeline

import (
	"context"
	"fmt"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
)

// ErrorChannel collects StreamError records routed from any number of
// producers. It is an ordinary stage of *StreamError and can be chained
// or collected like any other. Its input completes once every registered
// producer has completed, successfully or not.
type ErrorChannel struct {
	*Stage[*StreamError, *StreamError]
}

// NewErrorChannel creates an error channel with a unique ID.
func NewErrorChannel(opts ...Option) *ErrorChannel {
	opts = append([]Option{WithName("errors")}, opts...)
	s := newStage(KindErrorChannel, "errors", passRecord, opts)
	s.node.run = s.runSequential
	return &ErrorChannel{Stage: s}
}

func passRecord(_ context.Context, rec *StreamError) (*StreamError, bool, error) {
	return rec, true, nil
}

// RegisterProducers routes the records of each node into the channel.
// Registrations are cumulative across calls; registering the same
// producer twice has no effect. Consuming the channel does not start its
// producers; they run when their data path is consumed.
func (ch *ErrorChannel) RegisterProducers(nodes ...Node) error {
	if ch.started() {
		return errors.InvalidTopology(fmt.Sprintf("error channel %s already started", ch.name))
	}
	for i, n := range nodes {
		if isNilNode(n) {
			return errors.InvalidTopology(fmt.Sprintf("producer %d is nil", i))
		}
		if n.core() == ch.core() {
			return errors.InvalidTopology("error channel cannot route into itself")
		}
		if n.core().started() {
			return errors.InvalidTopology(fmt.Sprintf("stage %s already started", n.Name()))
		}
	}

	added := 0
	for _, n := range nodes {
		ok, err := n.errorPort().routeErrors(ch)
		if err != nil {
			return err
		}
		if ok {
			added++
		}
	}

	registered, _ := ch.in.join.Counts()
	ch.log.Debug("producers registered", logger.Fields(
		logger.FieldChannelID, ch.id,
		"added", added,
		logger.FieldProducers, registered,
	))
	return nil
}

// Close completes the channel's input regardless of registered producers.
// A channel nothing was registered with only ends this way.
func (ch *ErrorChannel) Close() {
	ch.in.join.Close()
}
