// Package kafka connects flowkit pipelines to Apache Kafka using
// segmentio/kafka-go.
//
// NewSource turns a reader into a pipeline source of Message values,
// NewSink and NewBatchSink write messages as a stage, and NewCommitter
// commits offsets once messages reached the end of a pipeline, giving
// at-least-once processing:
//
//	reader, _ := kafka.NewReader(cfg, "orders")
//	src := kafka.NewSource(reader)
//	parse := pipeline.NewStage("parse", pipeline.Map(kafka.DecodeJSON[Order]), ...)
//
// Write errors are classified: broker-side rejections such as "message too
// large" are permanent and skip retries configured with pipeline.WithRetry.
package kafka
