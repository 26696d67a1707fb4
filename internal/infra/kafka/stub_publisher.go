package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// Publish logs the event instead of producing it.
func (p *StubPublisher) Publish(_ context.Context, event domain.AuthEvent) error {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", event.EventType),
		zap.String("user_id", event.UserID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("metadata", event.Metadata),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
