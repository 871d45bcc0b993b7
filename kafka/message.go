package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Message is the value flowing through kafka sources and sinks.
type Message struct {
	Key       string            `json:"key"`
	Value     []byte            `json:"value"`
	Topic     string            `json:"topic"`
	Partition int               `json:"partition"`
	Offset    int64             `json:"offset"`
	Timestamp time.Time         `json:"timestamp"`
	Headers   map[string]string `json:"headers,omitempty"`

	raw *kafkago.Message
}

// FromKafkaMessage converts a kafka-go message. The original is kept for
// offset commits.
func FromKafkaMessage(msg kafkago.Message) Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{
		Key:       string(msg.Key),
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Headers:   headers,
		raw:       &msg,
	}
}

// ToKafkaMessage converts m back to a kafka-go message.
func (m Message) ToKafkaMessage() kafkago.Message {
	headers := make([]kafkago.Header, 0, len(m.Headers))
	for k, v := range m.Headers {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return kafkago.Message{
		Key:       []byte(m.Key),
		Value:     m.Value,
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Time:      m.Timestamp,
		Headers:   headers,
	}
}

// commitMessage returns the message to hand to CommitMessages.
func (m Message) commitMessage() kafkago.Message {
	if m.raw != nil {
		return *m.raw
	}
	return m.ToKafkaMessage()
}

// IsJSON reports whether the message declares or looks like JSON.
func (m Message) IsJSON() bool {
	if ct, ok := m.Headers["content-type"]; ok && ct == "application/json" {
		return true
	}
	if len(m.Value) > 0 {
		return m.Value[0] == '{' || m.Value[0] == '['
	}
	return false
}

// DecodeJSON unmarshals the message value into T. It has the shape of a
// pipeline.Map function.
func DecodeJSON[T any](_ context.Context, m Message) (T, error) {
	var v T
	if err := json.Unmarshal(m.Value, &v); err != nil {
		return v, fmt.Errorf("decode %s@%d/%d: %w", m.Topic, m.Partition, m.Offset, err)
	}
	return v, nil
}

// EncodeJSON returns a pipeline.Map function marshalling values into
// messages for topic, keyed by key (which may be nil).
func EncodeJSON[T any](topic string, key func(T) string) func(context.Context, T) (Message, error) {
	return func(_ context.Context, v T) (Message, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return Message{}, fmt.Errorf("encode for %s: %w", topic, err)
		}
		m := Message{
			Topic:   topic,
			Value:   data,
			Headers: map[string]string{"content-type": "application/json"},
		}
		if key != nil {
			m.Key = key(v)
		}
		return m, nil
	}
}
