package kafka

import (
	"context"
	stderrors "errors"
	"io"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/flowkit/pipeline"
)

// Reader is the subset of *kafkago.Reader a source needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// Committer commits consumed offsets; *kafkago.Reader implements it.
type Committer interface {
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

type readerIterator struct {
	r Reader
}

func (it *readerIterator) Next(ctx context.Context) (Message, bool, error) {
	msg, err := it.r.FetchMessage(ctx)
	if err != nil {
		if stderrors.Is(err, io.EOF) {
			return Message{}, false, nil
		}
		return Message{}, false, Classify(err, "reader")
	}
	return FromKafkaMessage(msg), true, nil
}

func (it *readerIterator) Close() error {
	return it.r.Close()
}

// NewSource creates a pipeline source emitting every message r fetches.
// The source completes when the reader is closed (io.EOF) and closes the
// reader when it stops. Offsets are not committed; place NewCommitter at
// the end of the pipeline for that.
func NewSource(r Reader, opts ...pipeline.Option) *pipeline.Source[Message] {
	return pipeline.FromIterator[Message](&readerIterator{r: r},
		append([]pipeline.Option{pipeline.WithName("kafka")}, opts...)...)
}

// NewCommitter creates a stage committing each message's offset after the
// stages before it handled the message. Messages pass through unchanged.
func NewCommitter(name string, c Committer, opts ...pipeline.Option) *pipeline.Stage[Message, Message] {
	return pipeline.NewStage(name, pipeline.Map(func(ctx context.Context, m Message) (Message, error) {
		if err := c.CommitMessages(ctx, m.commitMessage()); err != nil {
			return Message{}, Classify(err, m.Topic)
		}
		return m, nil
	}), opts...)
}
