package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/chapterhouse/library-iam/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestTokenIndexRepository_SetAndGet(t *testing.T) {
	client, server := newTestRedis(t)
	index := NewTokenIndexRepository(client, "refresh_index")

	ctx := context.Background()
	ttl := 30 * time.Minute

	if err := index.Set(ctx, "hash-abc", "user-1", ttl); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	userID, err := index.Get(ctx, "hash-abc")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %s", userID)
	}

	remaining := server.TTL("refresh_index:hash-abc")
	if remaining <= 0 || remaining > ttl {
		t.Fatalf("expected ttl within (0, %v], got %v", ttl, remaining)
	}
}

func TestTokenIndexRepository_GetMiss(t *testing.T) {
	client, _ := newTestRedis(t)
	index := NewTokenIndexRepository(client, "refresh_index")

	if _, err := index.Get(context.Background(), "unknown"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on cache miss, got %v", err)
	}
}

func TestTokenIndexRepository_Delete(t *testing.T) {
	client, _ := newTestRedis(t)
	index := NewTokenIndexRepository(client, "refresh_index")

	ctx := context.Background()
	if err := index.Set(ctx, "hash-abc", "user-1", time.Minute); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := index.Delete(ctx, "hash-abc"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if _, err := index.Get(ctx, "hash-abc"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestTokenIndexRepository_EntryExpires(t *testing.T) {
	client, server := newTestRedis(t)
	index := NewTokenIndexRepository(client, "refresh_index")

	ctx := context.Background()
	if err := index.Set(ctx, "hash-abc", "user-1", time.Minute); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	if _, err := index.Get(ctx, "hash-abc"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}
