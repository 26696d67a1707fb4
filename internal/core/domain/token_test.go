package domain

import (
	"testing"
	"time"
)

func TestRefreshToken_ExpiryBoundary(t *testing.T) {
	expiresAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	token := RefreshToken{ExpiresAt: expiresAt}

	if !token.IsExpired(expiresAt) {
		t.Fatalf("token with ExpiresAt == now must be expired")
	}
	if !token.IsExpired(expiresAt.Add(time.Nanosecond)) {
		t.Fatalf("token past expiry must be expired")
	}
	if token.IsExpired(expiresAt.Add(-time.Nanosecond)) {
		t.Fatalf("token before expiry must not be expired")
	}
}

func TestRefreshToken_RevokeOnce(t *testing.T) {
	now := time.Now().UTC()
	token := RefreshToken{ExpiresAt: now.Add(time.Hour)}

	if token.IsRevoked() {
		t.Fatalf("fresh token must not be revoked")
	}
	if !token.IsActive(now) {
		t.Fatalf("fresh token must be active")
	}

	if !token.Revoke(now) {
		t.Fatalf("first revoke must transition")
	}
	if token.Revoke(now.Add(time.Minute)) {
		t.Fatalf("second revoke must report no transition")
	}
	if token.RevokedAt == nil || !token.RevokedAt.Equal(now) {
		t.Fatalf("expected RevokedAt preserved from first revoke")
	}
	if token.IsActive(now) {
		t.Fatalf("revoked token must not be active")
	}
}
