package port

import (
	"context"
	"time"
)

// TokenIndex is a secondary index mapping refresh token hashes to owning
// user ids, kept warm in a cache so token lookup is O(1). Postgres holds
// the authoritative unique index; this one is best-effort and may miss.
type TokenIndex interface {
	Set(ctx context.Context, tokenHash, userID string, ttl time.Duration) error
	// Get returns repository.ErrNotFound on a cache miss.
	Get(ctx context.Context, tokenHash string) (string, error)
	Delete(ctx context.Context, tokenHash string) error
}
