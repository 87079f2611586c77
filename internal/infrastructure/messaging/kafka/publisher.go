package kafka

import (
	"context"
	"time"

	"github.com/minegov/royalty-engine/internal/application/royalty"
	"github.com/minegov/royalty-engine/internal/config"
	"github.com/minegov/royalty-engine/internal/domain/audit"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
)

const sourceService = "royalty-engine"

// ProducerConfigFrom maps the application's Kafka settings onto the
// producer's knobs.
func ProducerConfigFrom(cfg config.KafkaConfig) ProducerConfig {
	acks := "one"
	switch cfg.RequiredAcks {
	case -1:
		acks = "all"
	case 0:
		acks = "none"
	}
	return ProducerConfig{
		Brokers:    cfg.Brokers,
		Acks:       acks,
		MaxRetries: cfg.ProducerRetries,
		BatchSize:  cfg.BatchSize,
	}
}

// AuditPublisher streams audit events to the durable audit topic. It
// implements audit.Sink.
type AuditPublisher struct {
	producer *Producer
	topic    string
	logger   logging.Logger
}

func NewAuditPublisher(producer *Producer, topic string, log logging.Logger) *AuditPublisher {
	if topic == "" {
		topic = TopicAuditLog
	}
	return &AuditPublisher{producer: producer, topic: topic, logger: log}
}

func (p *AuditPublisher) Append(ctx context.Context, event audit.Event) error {
	env, err := NewEventEnvelope(string(event.Action), sourceService, AuditEventPayload{
		EventID:  string(event.ID),
		Action:   string(event.Action),
		RecordID: string(event.RecordID),
		Actor:    event.Actor,
		Occurred: event.Timestamp,
		Details:  event.Details,
	})
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(p.topic)
	if err != nil {
		return err
	}
	// Partition by record so one record's history stays ordered.
	if event.RecordID != "" {
		msg.Key = []byte(event.RecordID)
	}
	return p.producer.Publish(ctx, msg)
}

// Notifier fans record lifecycle notifications out to the notification
// topic. It implements the application layer's royalty.Notifier.
type Notifier struct {
	producer *Producer
	topic    string
	logger   logging.Logger
}

func NewNotifier(producer *Producer, topic string, log logging.Logger) *Notifier {
	if topic == "" {
		topic = TopicNotification
	}
	return &Notifier{producer: producer, topic: topic, logger: log}
}

func (n *Notifier) Notify(ctx context.Context, note royalty.Notification) error {
	var due *time.Time
	if !note.DueDate.IsZero() {
		d := note.DueDate
		due = &d
	}
	env, err := NewEventEnvelope(string(note.Type), sourceService, NotificationEventPayload{
		Type:     string(note.Type),
		RecordID: string(note.RecordID),
		Entity:   note.Entity,
		Mineral:  note.Mineral,
		Amount:   note.Amount,
		DueDate:  due,
		Message:  note.Message,
	})
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(n.topic)
	if err != nil {
		return err
	}
	if note.RecordID != "" {
		msg.Key = []byte(note.RecordID)
	}
	return n.producer.Publish(ctx, msg)
}
