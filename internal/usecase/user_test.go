package usecase

import (
	"context"
	"errors"
	"testing"

	uuid "github.com/google/uuid"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/infra/security"
)

func newUserHarness(t *testing.T) (*UserService, *stubStore, *stubEventPublisher) {
	t.Helper()

	store := newStubStore()
	events := &stubEventPublisher{}
	service := NewUserService(store, store.users, store.roles, nil, events, nil)
	return service, store, events
}

func TestUserService_CreateUser(t *testing.T) {
	service, _, events := newUserHarness(t)

	created, err := service.CreateUser(context.Background(), CreateUserInput{
		FirstName: "Alice",
		LastName:  "Smith",
		Email:     "alice@example.com",
		UserType:  domain.UserTypeEmployee,
		Password:  "Tr0ub4dor&3xplicit",
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	if created.Username != "alice.smith" {
		t.Fatalf("expected username alice.smith, got %s", created.Username)
	}
	if created.ExternalID == 0 {
		t.Fatalf("expected sequence-assigned external id")
	}
	if !created.IsActive || created.Version != 1 {
		t.Fatalf("expected active user at version 1, got %+v", created)
	}
	if created.PasswordHash != "" {
		t.Fatalf("expected password hash stripped from result")
	}

	if createdEvents := events.byType(domain.EventUserCreated); len(createdEvents) != 1 {
		t.Fatalf("expected one user created event, got %d", len(createdEvents))
	}
}

func TestUserService_CreateUserStoresVerifiableHash(t *testing.T) {
	service, store, _ := newUserHarness(t)

	created, err := service.CreateUser(context.Background(), CreateUserInput{
		FirstName: "Alice",
		LastName:  "Smith",
		Email:     "alice@example.com",
		UserType:  domain.UserTypeEmployee,
		Password:  "Tr0ub4dor&3xplicit",
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	stored, err := store.users.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}

	ok, err := security.VerifyPassword("Tr0ub4dor&3xplicit", stored.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("expected stored hash to verify, ok=%v err=%v", ok, err)
	}
}

func TestUserService_UsernameCollisionSuffix(t *testing.T) {
	service, _, _ := newUserHarness(t)
	ctx := context.Background()

	input := CreateUserInput{
		FirstName: "Alice",
		LastName:  "Smith",
		Email:     "alice@example.com",
		UserType:  domain.UserTypeEmployee,
		Password:  "Tr0ub4dor&3xplicit",
	}

	first, err := service.CreateUser(ctx, input)
	if err != nil {
		t.Fatalf("first CreateUser returned error: %v", err)
	}
	second, err := service.CreateUser(ctx, input)
	if err != nil {
		t.Fatalf("second CreateUser returned error: %v", err)
	}
	third, err := service.CreateUser(ctx, input)
	if err != nil {
		t.Fatalf("third CreateUser returned error: %v", err)
	}

	if first.Username != "alice.smith" || second.Username != "alice.smith1" || third.Username != "alice.smith2" {
		t.Fatalf("unexpected usernames: %s, %s, %s", first.Username, second.Username, third.Username)
	}
}

func TestUserService_CreateUserValidation(t *testing.T) {
	service, _, _ := newUserHarness(t)

	_, err := service.CreateUser(context.Background(), CreateUserInput{
		Email:    "not-an-email",
		UserType: "Wizard",
		Password: "weak",
	})
	ve, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Fields) < 4 {
		t.Fatalf("expected failures for name, email, type, and password, got %+v", ve.Fields)
	}
}

func TestUserService_CreateUserWeakPassword(t *testing.T) {
	service, _, _ := newUserHarness(t)

	_, err := service.CreateUser(context.Background(), CreateUserInput{
		FirstName: "Alice",
		LastName:  "Smith",
		Email:     "alice@example.com",
		UserType:  domain.UserTypeEmployee,
		Password:  "password",
	})
	if _, ok := AsValidationError(err); !ok {
		t.Fatalf("expected ValidationError for weak password, got %v", err)
	}
}

func TestUserService_AssignRole(t *testing.T) {
	service, store, _ := newUserHarness(t)
	ctx := context.Background()

	user := domain.User{ID: uuid.NewString(), Username: "alice.smith", UserType: domain.UserTypeEmployee, IsActive: true}
	store.users.add(user)

	role := domain.Role{ID: uuid.NewString(), Name: "Editor", Description: "Edits catalog entries", IsActive: true}
	if err := store.roles.Create(ctx, role); err != nil {
		t.Fatalf("seed role: %v", err)
	}

	if err := service.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("AssignRole returned error: %v", err)
	}
	if err := service.AssignRole(ctx, user.ID, role.ID); !errors.Is(err, domain.ErrDuplicateRoleAssignment) {
		t.Fatalf("expected ErrDuplicateRoleAssignment, got %v", err)
	}

	if err := service.AssignRole(ctx, user.ID, uuid.NewString()); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
	if err := service.AssignRole(ctx, uuid.NewString(), role.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserService_DeactivateUser(t *testing.T) {
	service, store, _ := newUserHarness(t)
	ctx := context.Background()

	user := domain.User{ID: uuid.NewString(), Username: "alice.smith", UserType: domain.UserTypeEmployee, IsActive: true}
	store.users.add(user)

	if err := service.DeactivateUser(ctx, user.ID); err != nil {
		t.Fatalf("DeactivateUser returned error: %v", err)
	}

	stored, err := store.users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if stored.IsActive {
		t.Fatalf("expected user inactive")
	}

	if err := service.DeactivateUser(ctx, uuid.NewString()); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
