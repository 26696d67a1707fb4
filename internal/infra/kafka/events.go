package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/core/port"
	"github.com/chapterhouse/library-iam/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Username  string           `json:"username,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// Publish sends an auth lifecycle event, keyed by user id so every event
// for one user lands on the same partition in order.
func (p *EventPublisher) Publish(ctx context.Context, event domain.AuthEvent) error {
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := event.EventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	for k, v := range event.Metadata {
		metadata[k] = v
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: event.EventType,
		UserID:    event.UserID,
		Username:  event.Username,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(event.EventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if event.UserID != "" {
		message.Key = sarama.StringEncoder(event.UserID)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.EventPublisher = (*EventPublisher)(nil)
