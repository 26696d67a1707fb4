package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/chapterhouse/library-iam/internal/core/port"
	"github.com/chapterhouse/library-iam/internal/repository"
)

const defaultTokenIndexPrefix = "libiam:refresh_index"

// TokenIndexRepository keeps a best-effort cache mapping refresh token
// hashes to owning user ids. Postgres owns the authoritative unique index
// on token_hash; a cache miss here only costs one extra database read.
type TokenIndexRepository struct {
	client *red.Client
	prefix string
}

// NewTokenIndexRepository wires the Redis-backed token index.
func NewTokenIndexRepository(client *red.Client, prefix string) *TokenIndexRepository {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		trimmed = defaultTokenIndexPrefix
	}

	return &TokenIndexRepository{client: client, prefix: trimmed}
}

// Set records the token-hash to user-id mapping with the token's remaining
// lifetime as TTL, so index entries expire alongside the tokens they index.
func (r *TokenIndexRepository) Set(ctx context.Context, tokenHash, userID string, ttl time.Duration) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("token index not configured")
	}
	if ttl < 0 {
		ttl = 0
	}

	if err := r.client.Set(ctx, r.key(tokenHash), userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token index: %w", err)
	}

	return nil
}

// Get resolves a token hash to the owning user id. A miss surfaces as
// repository.ErrNotFound; callers fall back to the database.
func (r *TokenIndexRepository) Get(ctx context.Context, tokenHash string) (string, error) {
	if r == nil || r.client == nil {
		return "", fmt.Errorf("token index not configured")
	}

	userID, err := r.client.Get(ctx, r.key(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis get token index: %w", err)
	}

	return userID, nil
}

// Delete drops the index entry after rotation or revocation.
func (r *TokenIndexRepository) Delete(ctx context.Context, tokenHash string) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("token index not configured")
	}

	if err := r.client.Del(ctx, r.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("redis delete token index: %w", err)
	}

	return nil
}

func (r *TokenIndexRepository) key(tokenHash string) string {
	return r.prefix + ":" + tokenHash
}

var _ port.TokenIndex = (*TokenIndexRepository)(nil)
