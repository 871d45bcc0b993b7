package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/flowkit/pipeline"
)

// Writer is the subset of *kafkago.Writer a sink needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// NewSink creates a stage writing each message and emitting it once the
// write succeeded. Use pipeline.WithRetry to retry transient failures.
func NewSink(name string, w Writer, opts ...pipeline.Option) *pipeline.Stage[Message, Message] {
	return pipeline.NewStage(name, pipeline.Map(func(ctx context.Context, m Message) (Message, error) {
		if err := w.WriteMessages(ctx, m.ToKafkaMessage()); err != nil {
			return Message{}, Classify(err, m.Topic)
		}
		return m, nil
	}), opts...)
}

// NewBatchSink creates a stage writing a whole batch in one call, usually
// fed by pipeline.Chunk. A failed write fails the whole batch.
func NewBatchSink(name string, w Writer, opts ...pipeline.Option) *pipeline.Stage[[]Message, []Message] {
	return pipeline.NewStage(name, pipeline.Map(func(ctx context.Context, batch []Message) ([]Message, error) {
		if len(batch) == 0 {
			return batch, nil
		}
		msgs := make([]kafkago.Message, len(batch))
		for i, m := range batch {
			msgs[i] = m.ToKafkaMessage()
		}
		if err := w.WriteMessages(ctx, msgs...); err != nil {
			return nil, Classify(err, batch[0].Topic)
		}
		return batch, nil
	}), opts...)
}
