package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/pkg/errors"
)

// Default topic names. Deployments override the audit and notification
// topics through config; the dead letter topic is fixed.
const (
	TopicAuditLog     = "royalty.audit"
	TopicNotification = "royalty.notifications"
	TopicDeadLetter   = "royalty.dead_letter"
)

// EventEnvelope is the wire format shared by every topic. Payload carries
// the event-specific body; consumers dispatch on EventType.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	TraceID       string            `json:"trace_id,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// AuditEventPayload mirrors one audit trail entry on the wire.
type AuditEventPayload struct {
	EventID  string                 `json:"event_id"`
	Action   string                 `json:"action"`
	RecordID string                 `json:"record_id"`
	Actor    string                 `json:"actor"`
	Occurred time.Time              `json:"occurred_at"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// NotificationEventPayload carries a record lifecycle notification for
// downstream channels (dashboard, email relay).
type NotificationEventPayload struct {
	Type     string     `json:"type"`
	RecordID string     `json:"record_id"`
	Entity   string     `json:"entity"`
	Mineral  string     `json:"mineral"`
	Amount   float64    `json:"amount"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	Message  string     `json:"message"`
}

func NewEventEnvelope(eventType string, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(e.Payload, target)
}

func (e *EventEnvelope) ToMessage(topic string) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	headers := map[string]string{
		"event_type":     e.EventType,
		"source_service": e.Source,
		"schema_version": e.SchemaVersion,
	}
	if e.TraceID != "" {
		headers["trace_id"] = e.TraceID
	}
	return &ProducerMessage{
		Topic:     topic,
		Key:       []byte(e.EventID),
		Value:     val,
		Headers:   headers,
		Timestamp: e.Timestamp,
	}, nil
}

func MessageToEventEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	DeleteTopics(topics ...string) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager performs topic administration against one broker.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to dial kafka")
	}
	return &TopicManager{conn: conn, logger: logger}, nil
}

func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return errors.New(errors.ErrCodeValidation, "topic name required")
	}
	if cfg.NumPartitions <= 0 {
		return errors.New(errors.ErrCodeValidation, "partitions must be > 0")
	}
	if cfg.ReplicationFactor <= 0 {
		return errors.New(errors.ErrCodeValidation, "replication factor must be > 0")
	}

	if err := m.conn.CreateTopics(cfg.kafkaConfig()); err != nil {
		// Another replica may have won the race; an existing topic is fine.
		if exists, _ := m.TopicExists(ctx, cfg.Name); exists {
			return nil
		}
		return err
	}
	m.logger.Info("Topic created", logging.String("topic", cfg.Name))
	return nil
}

func (cfg TopicConfig) kafkaConfig() kafka.TopicConfig {
	out := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	entry := func(name, value string) {
		out.ConfigEntries = append(out.ConfigEntries, kafka.ConfigEntry{
			ConfigName:  name,
			ConfigValue: value,
		})
	}
	if cfg.RetentionMs > 0 {
		entry("retention.ms", fmt.Sprintf("%d", cfg.RetentionMs))
	}
	if cfg.CleanupPolicy != "" {
		entry("cleanup.policy", cfg.CleanupPolicy)
	}
	if cfg.MaxMessageBytes > 0 {
		entry("max.message.bytes", fmt.Sprintf("%d", cfg.MaxMessageBytes))
	}
	for k, v := range cfg.Configs {
		entry(k, v)
	}
	return out
}

func (m *TopicManager) DeleteTopic(ctx context.Context, name string) error {
	if err := m.conn.DeleteTopics(name); err != nil {
		return err
	}
	m.logger.Warn("Topic deleted", logging.String("topic", name))
	return nil
}

// TopicExists treats a partition read failure as absence; the broker answers
// with an error for unknown topics.
func (m *TopicManager) TopicExists(ctx context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, nil
	}
	return len(partitions) > 0, nil
}

func (m *TopicManager) ListTopics(ctx context.Context) ([]string, error) {
	partitions, err := m.conn.ReadPartitions()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var topics []string
	for _, p := range partitions {
		if !seen[p.Topic] {
			seen[p.Topic] = true
			topics = append(topics, p.Topic)
		}
	}
	return topics, nil
}

func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, topic := range topics {
		if err := m.CreateTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

func (m *TopicManager) EnsureDefaultTopics(ctx context.Context) error {
	return m.EnsureTopics(ctx, DefaultTopics())
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}

// DefaultTopics returns the engine's topic set. The audit log keeps a year
// of events for regulator review; notifications are short-lived.
func DefaultTopics() []TopicConfig {
	return []TopicConfig{
		{Name: TopicAuditLog, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 365 * 24 * 3600 * 1000},
		{Name: TopicNotification, NumPartitions: 6, ReplicationFactor: 3, RetentionMs: 3 * 24 * 3600 * 1000},
		{Name: TopicDeadLetter, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 30 * 24 * 3600 * 1000},
	}
}
