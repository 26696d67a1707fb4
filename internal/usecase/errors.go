package usecase

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors carry the exact messages surfaced to API clients. The
// credential failures intentionally map to 400 at the transport boundary,
// not 401; 401 is reserved for the bearer-token check on protected routes.
var (
	// ErrInvalidUsername indicates no active user holds the supplied username.
	ErrInvalidUsername = errors.New("Invalid username")
	// ErrInvalidPassword indicates the password does not match the stored hash.
	ErrInvalidPassword = errors.New("Invalid password")
	// ErrRefreshTokenInvalid indicates the refresh token is revoked or past its expiry.
	ErrRefreshTokenInvalid = errors.New("Refresh token is invalid, expired, or revoked")
	// ErrUserNotFound indicates the user, or the token's owning user, could not be resolved.
	ErrUserNotFound = errors.New("User not found")
	// ErrRefreshTokenRevoked indicates a logout attempt against a token that is already revoked.
	ErrRefreshTokenRevoked = errors.New("Refresh token is already revoked")
	// ErrRoleNotFound indicates the referenced role does not exist.
	ErrRoleNotFound = errors.New("Role not found")
	// ErrUsernameTaken indicates username generation exhausted its suffix attempts.
	ErrUsernameTaken = errors.New("username could not be made unique")
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates per-field input failures. It is raised before
// any store access and maps to 400 with the field list attached.
type ValidationError struct {
	Fields []FieldError
}

// Error renders the aggregated field messages.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}

	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field failure.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// AsValidationError unwraps err into a ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
