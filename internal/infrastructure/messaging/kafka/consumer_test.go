package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
)

func newMockLogger() logging.Logger { return logging.NewNopLogger() }

type mockKafkaReader struct {
	fetchFunc  func(ctx context.Context) (kafka.Message, error)
	commitFunc func(ctx context.Context, msgs ...kafka.Message) error
	closeFunc  func() error
}

func (m *mockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.commitFunc != nil {
		return m.commitFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaReader) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func (m *mockKafkaReader) Stats() kafka.ReaderStats { return kafka.ReaderStats{} }

func newTestConsumer(reader ReaderInterface, cfg ConsumerConfig) *Consumer {
	return &Consumer{
		reader:   reader,
		config:   cfg,
		logger:   newMockLogger(),
		handlers: make(map[string]MessageHandler),
		metrics:  &ConsumerMetrics{},
	}
}

func TestValidateConsumerConfig(t *testing.T) {
	valid := ConsumerConfig{
		Brokers: []string{"localhost:9092"},
		GroupID: "royalty-worker",
		Topics:  []string{TopicNotification},
	}
	assert.NoError(t, ValidateConsumerConfig(valid))

	noBrokers := valid
	noBrokers.Brokers = nil
	assert.Error(t, ValidateConsumerConfig(noBrokers))

	noGroup := valid
	noGroup.GroupID = ""
	assert.Error(t, ValidateConsumerConfig(noGroup))

	badReset := valid
	badReset.AutoOffsetReset = "somewhere"
	assert.Error(t, ValidateConsumerConfig(badReset))
}

func TestConsumer_SubscribeAndUnsubscribe(t *testing.T) {
	c := newTestConsumer(&mockKafkaReader{}, ConsumerConfig{})

	require.NoError(t, c.Subscribe(TopicNotification, func(context.Context, *Message) error { return nil }))
	assert.Len(t, c.handlers, 1)

	require.NoError(t, c.Unsubscribe(TopicNotification))
	assert.Empty(t, c.handlers)
}

func TestConsumer_StartTwice(t *testing.T) {
	c := newTestConsumer(&mockKafkaReader{}, ConsumerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, ErrAlreadyRunning, c.Start(ctx))
	require.NoError(t, c.Close())
}

func TestConsumer_DispatchesAndCommits(t *testing.T) {
	delivered := false
	committed := make(chan kafka.Message, 1)
	reader := &mockKafkaReader{
		fetchFunc: func(ctx context.Context) (kafka.Message, error) {
			if delivered {
				<-ctx.Done()
				return kafka.Message{}, ctx.Err()
			}
			delivered = true
			return kafka.Message{
				Topic:   TopicNotification,
				Offset:  7,
				Key:     []byte("rec-1"),
				Value:   []byte(`{"event_type":"royalty.payment_due_soon"}`),
				Headers: []kafka.Header{{Key: "source_service", Value: []byte("worker")}},
			}, nil
		},
		commitFunc: func(_ context.Context, msgs ...kafka.Message) error {
			committed <- msgs[0]
			return nil
		},
	}

	c := newTestConsumer(reader, ConsumerConfig{})
	handled := make(chan *Message, 1)
	require.NoError(t, c.Subscribe(TopicNotification, func(_ context.Context, msg *Message) error {
		handled <- msg
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	select {
	case msg := <-handled:
		assert.Equal(t, int64(7), msg.Offset)
		assert.Equal(t, "worker", msg.Headers["source_service"])
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
	select {
	case m := <-committed:
		assert.Equal(t, int64(7), m.Offset)
	case <-time.After(time.Second):
		t.Fatal("message was never committed")
	}

	require.NoError(t, c.Close())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.MessagesConsumed)
	assert.Equal(t, int64(1), stats.MessagesProcessed)
}

func TestConsumer_CommitsUnhandledTopics(t *testing.T) {
	delivered := false
	committed := make(chan struct{}, 1)
	reader := &mockKafkaReader{
		fetchFunc: func(ctx context.Context) (kafka.Message, error) {
			if delivered {
				<-ctx.Done()
				return kafka.Message{}, ctx.Err()
			}
			delivered = true
			return kafka.Message{Topic: "unrelated.topic", Value: []byte("x")}, nil
		},
		commitFunc: func(context.Context, ...kafka.Message) error {
			committed <- struct{}{}
			return nil
		},
	}

	c := newTestConsumer(reader, ConsumerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	select {
	case <-committed:
	case <-time.After(time.Second):
		t.Fatal("unhandled message was never committed")
	}
	require.NoError(t, c.Close())
}

func TestProcessMessage_RetriesUntilSuccess(t *testing.T) {
	c := newTestConsumer(&mockKafkaReader{}, ConsumerConfig{
		RetryConfig: RetryConfig{MaxRetries: 2, RetryBackoff: time.Millisecond},
	})

	attempts := 0
	handler := func(context.Context, *Message) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	}

	require.NoError(t, c.processMessage(context.Background(), &Message{}, handler))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, int64(1), c.Stats().MessagesRetried)
}

func TestProcessMessage_DeadLettersOnExhaustion(t *testing.T) {
	var dlq kafka.Message
	writer := &mockKafkaWriter{
		writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
			dlq = msgs[0]
			return nil
		},
	}

	c := newTestConsumer(&mockKafkaReader{}, ConsumerConfig{
		RetryConfig: RetryConfig{
			MaxRetries:      1,
			RetryBackoff:    time.Millisecond,
			DeadLetterTopic: TopicNotification + ".dlq",
		},
	})
	c.deadLetterProducer = newTestProducer(writer)

	msg := &Message{Topic: TopicNotification, Key: []byte("rec-9"), Value: []byte("payload")}
	handler := func(context.Context, *Message) error { return errors.New("poison") }

	require.NoError(t, c.processMessage(context.Background(), msg, handler))
	assert.Equal(t, TopicNotification+".dlq", dlq.Topic)
	assert.Equal(t, "rec-9", string(dlq.Key))
	assert.Equal(t, int64(1), c.Stats().MessagesDeadLettered)

	var originalTopic string
	for _, h := range dlq.Headers {
		if h.Key == "original_topic" {
			originalTopic = string(h.Value)
		}
	}
	assert.Equal(t, TopicNotification, originalTopic)
}

func TestConsumer_CloseIsIdempotent(t *testing.T) {
	closes := 0
	reader := &mockKafkaReader{closeFunc: func() error {
		closes++
		return nil
	}}

	c := newTestConsumer(reader, ConsumerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, closes)
}
