package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/core/port"
	"github.com/chapterhouse/library-iam/internal/infra/logger"
	"github.com/chapterhouse/library-iam/internal/infra/security"
	"github.com/chapterhouse/library-iam/internal/repository"
)

// AuthService coordinates the Login, Logout, and RefreshToken command
// flows, composing the password verifier, permission resolution, the
// token issuer, and the rotation engine.
type AuthService struct {
	users    port.UserRepository
	issuer   *security.TokenIssuer
	rotation *RotationService
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs an AuthService instance. The event publisher
// is optional; a nil publisher disables lifecycle events.
func NewAuthService(
	users port.UserRepository,
	issuer *security.TokenIssuer,
	rotation *RotationService,
	events port.EventPublisher,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}

	service := &AuthService{
		users:    users,
		issuer:   issuer,
		rotation: rotation,
		events:   events,
		logger:   log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// LoginResult is the successful response of the Login command.
type LoginResult struct {
	AccessToken      string
	RefreshToken     string
	ExpiresInSeconds int64
	User             domain.User
}

// RefreshResult is the successful response of the RefreshToken command.
type RefreshResult struct {
	AccessToken      string
	RefreshToken     string
	ExpiresInSeconds int64
	TokenType        string
}

// Login verifies credentials and issues an access/refresh token pair.
// Username and password are matched exactly as supplied: no trimming, no
// case folding, so "alice " fails the same way a nonexistent user does.
func (s *AuthService) Login(ctx context.Context, username, password string, rememberMe bool) (*LoginResult, error) {
	var ve ValidationError
	if username == "" {
		ve.Add("username", "Username is required")
	}
	if password == "" {
		ve.Add("password", "Password is required")
	}
	if ve.HasErrors() {
		return nil, &ve
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidUsername
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidUsername
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		s.logger.Info("Login rejected",
			zap.String("username", logger.MaskUsername(username)),
		)
		return nil, ErrInvalidPassword
	}

	accessToken, err := s.generateAccessToken(*user)
	if err != nil {
		return nil, err
	}

	refreshValue, _, err := s.rotation.Issue(ctx, user.ID, rememberMe)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	s.publish(ctx, domain.EventUserLoggedIn, *user)

	sanitized := *user
	sanitized.PasswordHash = ""

	return &LoginResult{
		AccessToken:      accessToken,
		RefreshToken:     refreshValue,
		ExpiresInSeconds: int64(s.issuer.TTL().Seconds()),
		User:             sanitized,
	}, nil
}

// Logout revokes the presented refresh token on behalf of the user.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string) error {
	var ve ValidationError
	if _, err := uuid.Parse(userID); err != nil {
		ve.Add("userId", "User id must be a valid UUID")
	}
	if refreshToken == "" {
		ve.Add("refreshToken", "Refresh token is required")
	}
	if ve.HasErrors() {
		return &ve
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if err := s.rotation.Revoke(ctx, refreshToken, user.ID); err != nil {
		return err
	}

	s.publish(ctx, domain.EventTokenRevoked, *user)
	s.publish(ctx, domain.EventUserLoggedOut, *user)
	return nil
}

// RefreshToken rotates the presented refresh token and signs a new access
// token from the owner's current role and permission state, so revoked
// grants disappear at the next refresh rather than at token expiry.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		var ve ValidationError
		ve.Add("refreshToken", "Refresh token is required")
		return nil, &ve
	}

	user, newValue, _, err := s.rotation.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.generateAccessToken(*user)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventTokenRotated, *user)

	return &RefreshResult{
		AccessToken:      accessToken,
		RefreshToken:     newValue,
		ExpiresInSeconds: int64(s.issuer.TTL().Seconds()),
		TokenType:        "Bearer",
	}, nil
}

func (s *AuthService) generateAccessToken(user domain.User) (string, error) {
	permissions := ResolveEffectivePermissions(user)

	token, err := s.issuer.Generate(user, user.RoleNames(), permissions.Strings())
	if err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return token, nil
}

func (s *AuthService) publish(ctx context.Context, eventType string, user domain.User) {
	if s.events == nil {
		return
	}

	event := domain.AuthEvent{
		EventType:  eventType,
		UserID:     user.ID,
		Username:   user.Username,
		OccurredAt: s.now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish auth event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
