package port

import (
	"context"
	"time"

	"github.com/chapterhouse/library-iam/internal/core/domain"
)

// TokenRepository persists refresh tokens. Rows are append-only: tokens
// are revoked in place, never deleted, so replay attempts stay detectable.
type TokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	// GetByHash resolves a token through the unique token_hash index,
	// never a scan over users.
	GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	// Revoke sets revoked_at only when the row is not yet revoked
	// (compare-and-set). A concurrent loser observes repository.ErrNotFound
	// and must treat the token as already revoked.
	Revoke(ctx context.Context, id string, at time.Time) error
	ListByUser(ctx context.Context, userID string) ([]domain.RefreshToken, error)
}
