package domain

import "time"

// RefreshToken is a value object owned by exactly one user for its entire
// lifetime. The raw token value is random and opaque; only its SHA-256
// hash is stored. A token transitions once from issued to revoked (logout
// or rotation); expiry is a derived condition, never a stored state.
type RefreshToken struct {
	ID           string
	UserID       string
	TokenHash    string
	IsRememberMe bool
	CreatedAt    time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
}

// IsExpired reports whether the validity window has elapsed. A token whose
// ExpiresAt equals the supplied instant is already expired.
func (t RefreshToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// IsRevoked reports whether the token was explicitly revoked.
func (t RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsActive returns true when the token can still be presented for rotation.
func (t RefreshToken) IsActive(at time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(at)
}

// Revoke marks the token as revoked. Returns true if the token transitioned
// to the revoked state, false when it was revoked already.
func (t *RefreshToken) Revoke(at time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	timeCopy := at
	t.RevokedAt = &timeCopy
	return true
}
