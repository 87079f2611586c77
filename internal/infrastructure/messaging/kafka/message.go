// Package kafka carries the engine's event stream: durable audit events,
// notification fan-out, and the dead letter queue for messages that exhaust
// their retries.
package kafka

import (
	"context"
	"time"
)

// ProducerMessage is an outbound message before partition assignment.
type ProducerMessage struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
	Partition int
}

// Message is an inbound message as delivered to handlers.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// MessageHandler processes one inbound message. A non-nil error triggers
// the consumer's retry and dead letter policy.
type MessageHandler func(ctx context.Context, msg *Message) error

// BatchPublishResult reports per-message outcomes of a batch publish.
type BatchPublishResult struct {
	Succeeded int
	Failed    int
	Errors    []BatchItemError
}

// BatchItemError records one failed message in a batch. Index -1 means the
// whole batch failed before per-message attribution was possible.
type BatchItemError struct {
	Index int
	Topic string
	Error error
}

// TopicConfig describes a topic for administrative creation.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
	CleanupPolicy     string
	MaxMessageBytes   int
	Configs           map[string]string
}
