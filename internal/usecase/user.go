package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/core/port"
	"github.com/chapterhouse/library-iam/internal/infra/security"
	"github.com/chapterhouse/library-iam/internal/repository"
)

// usernameSuffixAttempts bounds the search for a free username variant.
const usernameSuffixAttempts = 50

// CreateUserInput carries the fields of the user creation command.
type CreateUserInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     *string
	UserType  domain.UserType
	Password  string
}

// UserService manages the user aggregate lifecycle.
type UserService struct {
	store     port.UnitOfWork
	users     port.UserRepository
	roles     port.RoleRepository
	passwords *security.PasswordValidator
	events    port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewUserService constructs a UserService instance.
func NewUserService(
	store port.UnitOfWork,
	users port.UserRepository,
	roles port.RoleRepository,
	passwords *security.PasswordValidator,
	events port.EventPublisher,
	log *zap.Logger,
) *UserService {
	if passwords == nil {
		passwords = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}

	service := &UserService{
		store:     store,
		users:     users,
		roles:     roles,
		passwords: passwords,
		events:    events,
		logger:    log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *UserService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CreateUser validates the input, derives a unique username from the
// person's name, hashes the password, and persists the new aggregate.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	var ve ValidationError
	if input.FirstName == "" {
		ve.Add("firstName", "First name is required")
	}
	if input.LastName == "" {
		ve.Add("lastName", "Last name is required")
	}
	if input.Email == "" {
		ve.Add("email", "Email is required")
	} else if _, err := mail.ParseAddress(input.Email); err != nil {
		ve.Add("email", "Email is not a valid address")
	}
	if !input.UserType.Valid() {
		ve.Add("userType", "User type must be Customer, Employee, or Administrator")
	}
	if input.Password == "" {
		ve.Add("password", "Password is required")
	} else if err := s.passwords.Validate(input.Password); err != nil {
		ve.Add("password", err.Error())
	}
	if ve.HasErrors() {
		return nil, &ve
	}

	username, err := s.generateUsername(ctx, input.FirstName, input.LastName)
	if err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           uuid.NewString(),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Username:     username,
		PasswordHash: hash,
		Email:        input.Email,
		Phone:        input.Phone,
		UserType:     input.UserType,
		IsActive:     true,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var created *domain.User
	err = s.store.Do(ctx, func(repos port.RepositorySet) error {
		var err error
		created, err = repos.Users.Create(ctx, user)
		if errors.Is(err, repository.ErrConflict) {
			return ErrUsernameTaken
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("User created",
		zap.String("user_id", created.ID),
		zap.Int64("external_id", created.ExternalID),
		zap.String("user_type", string(created.UserType)),
	)
	s.publish(ctx, domain.EventUserCreated, *created)

	sanitized := *created
	sanitized.PasswordHash = ""
	return &sanitized, nil
}

// GetByID loads a user aggregate by primary id.
func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	sanitized := *user
	sanitized.PasswordHash = ""
	return &sanitized, nil
}

// GetByExternalID loads a user aggregate by its sequential external id.
func (s *UserService) GetByExternalID(ctx context.Context, externalID int64) (*domain.User, error) {
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	sanitized := *user
	sanitized.PasswordHash = ""
	return &sanitized, nil
}

// DeactivateUser soft-deletes the user. Existing refresh tokens stay
// persisted but the account no longer passes the active check at login.
func (s *UserService) DeactivateUser(ctx context.Context, id string) error {
	if err := s.users.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("deactivate user: %w", err)
	}

	s.logger.Info("User deactivated", zap.String("user_id", id))
	return nil
}

// AssignRole links an existing role to the user. Duplicate assignments
// are rejected.
func (s *UserService) AssignRole(ctx context.Context, userID, roleID string) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("load role: %w", err)
	}

	if err := s.users.AssignRole(ctx, userID, role.ID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.ErrDuplicateRoleAssignment
		}
		return fmt.Errorf("assign role: %w", err)
	}

	s.logger.Info("Role assigned to user",
		zap.String("user_id", userID),
		zap.String("role", role.Name),
	)
	return nil
}

// RemoveRole unlinks a role from the user.
func (s *UserService) RemoveRole(ctx context.Context, userID, roleID string) error {
	if err := s.users.RemoveRole(ctx, userID, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("remove role: %w", err)
	}

	s.logger.Info("Role removed from user",
		zap.String("user_id", userID),
		zap.String("role_id", roleID),
	)
	return nil
}

// generateUsername derives the "first.last" stem and probes numbered
// variants until one is free. The stored username is final: it is matched
// verbatim at login, never trimmed or case-folded.
func (s *UserService) generateUsername(ctx context.Context, firstName, lastName string) (string, error) {
	base := domain.UsernameBase(firstName, lastName)
	if base == "" {
		var ve ValidationError
		ve.Add("firstName", "Name must contain at least one letter or digit")
		return "", &ve
	}

	candidate := base
	for attempt := 1; attempt <= usernameSuffixAttempts; attempt++ {
		taken, err := s.users.UsernameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(attempt)
	}

	return "", ErrUsernameTaken
}

func (s *UserService) publish(ctx context.Context, eventType string, user domain.User) {
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
