package domain

import "time"

// Auth lifecycle event types published to the message bus.
const (
	EventUserLoggedIn  = "auth.user.logged_in"
	EventUserLoggedOut = "auth.user.logged_out"
	EventTokenRotated  = "auth.token.rotated"
	EventTokenRevoked  = "auth.token.revoked"
	EventUserCreated   = "auth.user.created"
)

// AuthEvent describes a state change in the authentication subsystem.
type AuthEvent struct {
	EventID    string
	EventType  string
	UserID     string
	Username   string
	OccurredAt time.Time
	Metadata   map[string]string
}
