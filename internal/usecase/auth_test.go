package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	uuid "github.com/google/uuid"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/infra/security"
)

func newAuthHarness(t *testing.T) (*AuthService, *stubStore, *stubEventPublisher) {
	t.Helper()

	settings := testAuthSettings()
	store := newStubStore()
	events := &stubEventPublisher{}

	issuer, err := security.NewTokenIssuer(
		settings.SigningSecret,
		settings.Issuer,
		settings.Audience,
		settings.AccessTokenTTL(),
	)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	rotation := NewRotationService(store, store.tokens, nil, settings, nil)
	service := NewAuthService(store.users, issuer, rotation, events, nil)

	return service, store, events
}

func seedUser(t *testing.T, store *stubStore, username, password string, userType domain.UserType, roles ...domain.Role) domain.User {
	t.Helper()

	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		ExternalID:   1,
		FirstName:    "Alice",
		LastName:     "Smith",
		Username:     username,
		PasswordHash: hash,
		Email:        username + "@example.com",
		UserType:     userType,
		IsActive:     true,
		Version:      1,
		Roles:        roles,
	}
	store.users.add(user)
	return user
}

func TestAuthService_LoginSuccess(t *testing.T) {
	service, store, events := newAuthHarness(t)
	seedUser(t, store, "alice", "Secret123!", domain.UserTypeEmployee)

	result, err := service.Login(context.Background(), "alice", "Secret123!", false)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("expected non-empty token pair")
	}
	if segments := strings.Split(result.AccessToken, "."); len(segments) != 3 {
		t.Fatalf("expected 3 access token segments, got %d", len(segments))
	}
	if result.ExpiresInSeconds != 15*60 {
		t.Fatalf("expected 900 seconds expiry, got %d", result.ExpiresInSeconds)
	}
	if result.User.PasswordHash != "" {
		t.Fatalf("expected password hash stripped from result")
	}

	if logged := events.byType(domain.EventUserLoggedIn); len(logged) != 1 {
		t.Fatalf("expected one logged_in event, got %d", len(logged))
	}
}

func TestAuthService_LoginRefreshTokensNeverRepeat(t *testing.T) {
	service, store, _ := newAuthHarness(t)
	seedUser(t, store, "alice", "Secret123!", domain.UserTypeEmployee)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 5; i++ {
		result, err := service.Login(ctx, "alice", "Secret123!", false)
		if err != nil {
			t.Fatalf("Login %d returned error: %v", i, err)
		}
		if _, dup := seen[result.RefreshToken]; dup {
			t.Fatalf("refresh token repeated on login %d", i)
		}
		seen[result.RefreshToken] = struct{}{}
	}
}

func TestAuthService_LoginFailures(t *testing.T) {
	service, store, _ := newAuthHarness(t)
	seedUser(t, store, "alice", "Secret123!", domain.UserTypeEmployee)
	ctx := context.Background()

	if _, err := service.Login(ctx, "alice", "wrong", false); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	if _, err := service.Login(ctx, "bob", "x", false); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername for absent user, got %v", err)
	}

	// No trimming: a username with surrounding whitespace misses exactly
	// like a nonexistent one.
	if _, err := service.Login(ctx, " alice", "Secret123!", false); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername for padded username, got %v", err)
	}
}

func TestAuthService_LoginInactiveUser(t *testing.T) {
	service, store, _ := newAuthHarness(t)
	user := seedUser(t, store, "alice", "Secret123!", domain.UserTypeEmployee)

	if err := store.users.Deactivate(context.Background(), user.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	if _, err := service.Login(context.Background(), "alice", "Secret123!", false); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername for inactive user, got %v", err)
	}
}

func TestAuthService_LoginValidation(t *testing.T) {
	service, _, _ := newAuthHarness(t)

	_, err := service.Login(context.Background(), "", "", false)
	ve, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Fields) != 2 {
		t.Fatalf("expected 2 field errors, got %d", len(ve.Fields))
	}
}

func TestAuthService_LoginEmbedsPermissionClaims(t *testing.T) {
	service, store, _ := newAuthHarness(t)

	editor := domain.Role{
		ID:       uuid.NewString(),
		Name:     "Editor",
		IsActive: true,
		Permissions: []domain.Permission{
			{Feature: domain.FeatureBook, Action: domain.ActionUpdate},
			{Feature: domain.FeatureBook, Action: domain.ActionRead},
		},
	}
	seedUser(t, store, "alice", "Secret123!", domain.UserTypeEmployee, editor)

	result, err := service.Login(context.Background(), "alice", "Secret123!", false)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	settings := testAuthSettings()
	issuer, err := security.NewTokenIssuer(settings.SigningSecret, settings.Issuer, settings.Audience, settings.AccessTokenTTL())
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	claims, err := issuer.Parse(result.AccessToken)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("expected sub alice, got %s", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "Editor" {
		t.Fatalf("expected Editor role claim, got %v", claims.Roles)
	}
	if len(claims.Permissions) != 2 {
		t.Fatalf("expected 2 permission claims, got %v", claims.Permissions)
	}
	if !AuthorizeClaims(claims, domain.FeatureBook, domain.ActionUpdate) {
		t.Fatalf("expected Book:Update authorized from claims")
	}
	if AuthorizeClaims(claims, domain.FeatureBook, domain.ActionDelete) {
		t.Fatalf("expected Book:Delete denied from claims")
	}
}

func TestAuthService_AdministratorClaimsCarryNoEnumeration(t *testing.T) {
	service, store, _ := newAuthHarness(t)
	seedUser(t, store, "root.admin", "Secret123!", domain.UserTypeAdministrator)

	result, err := service.Login(context.Background(), "root.admin", "Secret123!", false)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	settings := testAuthSettings()
	issuer, err := security.NewTokenIssuer(settings.SigningSecret, settings.Issuer, settings.Audience, settings.AccessTokenTTL())
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	claims, err := issuer.Parse(result.AccessToken)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(claims.Permissions) != 0 {
		t.Fatalf("expected no permission enumeration for administrator, got %v", claims.Permissions)
	}
	if !AuthorizeClaims(claims, domain.FeatureRole, domain.ActionDelete) {
		t.Fatalf("expected administrator claims to authorize everything")
	}
}

func TestAuthService_LogoutFlow(t *testing.T) {
	service, store, events := newAuthHarness(t)
	user := seedUser(t, store, "alice", "Secret123!", domain.UserTypeEmployee)
	ctx := context.Background()

	result, err := service.Login(ctx, "alice", "Secret123!", false)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := service.Logout(ctx, user.ID, result.RefreshToken); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if err := service.Logout(ctx, user.ID, result.RefreshToken); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("expected ErrRefreshTokenRevoked on second logout, got %v", err)
	}

	if loggedOut := events.byType(domain.EventUserLoggedOut); len(loggedOut) != 1 {
		t.Fatalf("expected one logged_out event, got %d", len(loggedOut))
	}
	if revoked := events.byType(domain.EventTokenRevoked); len(revoked) != 1 {
		t.Fatalf("expected one token revoked event, got %d", len(revoked))
	}
}

func TestAuthService_LogoutValidation(t *testing.T) {
	service, _, _ := newAuthHarness(t)

	err := service.Logout(context.Background(), "not-a-uuid", "")
	ve, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Fields) != 2 {
		t.Fatalf("expected 2 field errors, got %d", len(ve.Fields))
	}

	if err := service.Logout(context.Background(), uuid.NewString(), "some-token"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for unknown user, got %v", err)
	}
}

func TestAuthService_RefreshTokenFlow(t *testing.T) {
	service, store, _ := newAuthHarness(t)
	seedUser(t, store, "alice", "Secret123!", domain.UserTypeEmployee)
	ctx := context.Background()

	login, err := service.Login(ctx, "alice", "Secret123!", false)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	refreshed, err := service.RefreshToken(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken returned error: %v", err)
	}
	if refreshed.TokenType != "Bearer" {
		t.Fatalf("expected Bearer token type, got %s", refreshed.TokenType)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatalf("expected a fresh refresh token")
	}
	if segments := strings.Split(refreshed.AccessToken, "."); len(segments) != 3 {
		t.Fatalf("expected 3 access token segments, got %d", len(segments))
	}

	if _, err := service.RefreshToken(ctx, login.RefreshToken); !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Fatalf("expected old refresh token rejected, got %v", err)
	}
}

func TestAuthService_RefreshUsesCurrentPermissionState(t *testing.T) {
	service, store, _ := newAuthHarness(t)

	editor := domain.Role{
		ID:       uuid.NewString(),
		Name:     "Editor",
		IsActive: true,
		Permissions: []domain.Permission{
			{Feature: domain.FeatureBook, Action: domain.ActionUpdate},
		},
	}
	user := seedUser(t, store, "alice", "Secret123!", domain.UserTypeEmployee, editor)
	ctx := context.Background()

	login, err := service.Login(ctx, "alice", "Secret123!", false)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	// Deny Book:Update between login and refresh; the refreshed access
	// token must reflect the new state.
	if err := store.users.AddDeniedPermission(ctx, user.ID, domain.Permission{Feature: domain.FeatureBook, Action: domain.ActionUpdate}); err != nil {
		t.Fatalf("AddDeniedPermission: %v", err)
	}

	refreshed, err := service.RefreshToken(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken returned error: %v", err)
	}

	settings := testAuthSettings()
	issuer, err := security.NewTokenIssuer(settings.SigningSecret, settings.Issuer, settings.Audience, settings.AccessTokenTTL())
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	claims, err := issuer.Parse(refreshed.AccessToken)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if AuthorizeClaims(claims, domain.FeatureBook, domain.ActionUpdate) {
		t.Fatalf("expected denied permission absent from refreshed token")
	}
}

func TestAuthService_ClockPropagation(t *testing.T) {
	service, store, _ := newAuthHarness(t)
	seedUser(t, store, "alice", "Secret123!", domain.UserTypeEmployee)

	fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	service.WithClock(func() time.Time { return fixed })

	result, err := service.Login(context.Background(), "alice", "Secret123!", false)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatalf("expected access token")
	}
}
