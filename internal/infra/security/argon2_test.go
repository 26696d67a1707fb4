package security

import (
	"strings"
	"testing"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("Secret123!")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	if !strings.HasPrefix(hash, "argon2id$v=19$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}

	ok, err := VerifyPassword("Secret123!", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected password to verify")
	}

	ok, err = VerifyPassword("wrong", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch to fail")
	}
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	first, err := HashPassword("Secret123!")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	second, err := HashPassword("Secret123!")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if first == second {
		t.Fatalf("expected per-hash random salts")
	}
}

func TestVerifyPassword_NoTrimmingOrFolding(t *testing.T) {
	hash, err := HashPassword("Secret123!")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	for _, password := range []string{" Secret123!", "Secret123! ", "secret123!", ""} {
		ok, err := VerifyPassword(password, hash)
		if err != nil {
			t.Fatalf("VerifyPassword(%q) returned error: %v", password, err)
		}
		if ok {
			t.Fatalf("expected %q to fail verification", password)
		}
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	if _, err := VerifyPassword("Secret123!", "not-an-encoded-hash"); err == nil {
		t.Fatalf("expected error for malformed hash")
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		token, err := GenerateRefreshToken(32)
		if err != nil {
			t.Fatalf("GenerateRefreshToken returned error: %v", err)
		}
		if token == "" {
			t.Fatalf("expected non-empty token")
		}
		if strings.Contains(token, ".") {
			t.Fatalf("refresh token must not resemble a JWT: %s", token)
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token generated")
		}
		seen[token] = struct{}{}
	}

	if _, err := GenerateRefreshToken(0); err == nil {
		t.Fatalf("expected error for non-positive length")
	}
}

func TestHashToken_Deterministic(t *testing.T) {
	first := HashToken("opaque-value")
	second := HashToken("opaque-value")
	if first != second {
		t.Fatalf("expected deterministic hash")
	}
	if first == HashToken("other-value") {
		t.Fatalf("expected distinct hashes for distinct values")
	}
	if len(first) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(first))
	}
}
