package port

import (
	"context"

	"github.com/chapterhouse/library-iam/internal/core/domain"
)

// EventPublisher delivers auth lifecycle events to the message bus.
// Publishing is best-effort; command flows never fail on publish errors.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.AuthEvent) error
}
