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
	"github.com/chapterhouse/library-iam/internal/repository"
)

// ErrRoleNameTaken indicates another role already carries the name.
var ErrRoleNameTaken = errors.New("role name already exists")

// RoleService manages roles and their permission sets. Roles are
// deactivated rather than deleted so historical assignments stay
// resolvable.
type RoleService struct {
	store  port.UnitOfWork
	roles  port.RoleRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewRoleService constructs a RoleService instance.
func NewRoleService(store port.UnitOfWork, roles port.RoleRepository, log *zap.Logger) *RoleService {
	if log == nil {
		log = zap.NewNop()
	}

	service := &RoleService{
		store:  store,
		roles:  roles,
		logger: log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *RoleService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CreateRole validates and persists a new role with its initial
// permission set in one unit of work.
func (s *RoleService) CreateRole(ctx context.Context, name, description string, permissions []domain.Permission) (*domain.Role, error) {
	now := s.now()
	role := domain.Role{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := role.Validate(); err != nil {
		return nil, err
	}
	for _, p := range permissions {
		if err := role.AssignPermission(p); err != nil {
			return nil, err
		}
	}

	err := s.store.Do(ctx, func(repos port.RepositorySet) error {
		if err := repos.Roles.Create(ctx, role); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrRoleNameTaken
			}
			return fmt.Errorf("create role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Role created",
		zap.String("role_id", role.ID),
		zap.String("name", role.Name),
		zap.Int("permissions", len(role.Permissions)),
	)
	return &role, nil
}

// GetRole loads a role with its permission set.
func (s *RoleService) GetRole(ctx context.Context, id string) (*domain.Role, error) {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("load role: %w", err)
	}
	return role, nil
}

// GetRoleByName loads a role by its unique name.
func (s *RoleService) GetRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	role, err := s.roles.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("load role: %w", err)
	}
	return role, nil
}

// ListRoles returns every role ordered by name.
func (s *RoleService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// UpdateRole changes the role's name and description in place.
func (s *RoleService) UpdateRole(ctx context.Context, id, name, description string) (*domain.Role, error) {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}

	role.Name = name
	role.Description = description
	role.UpdatedAt = s.now()
	if err := role.Validate(); err != nil {
		return nil, err
	}

	if err := s.roles.Update(ctx, *role); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrRoleNameTaken
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}

	s.logger.Info("Role updated", zap.String("role_id", role.ID))
	return role, nil
}

// DeactivateRole soft-deletes the role.
func (s *RoleService) DeactivateRole(ctx context.Context, id string) error {
	if err := s.roles.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("deactivate role: %w", err)
	}

	s.logger.Info("Role deactivated", zap.String("role_id", id))
	return nil
}

// AssignPermission adds a (feature, action) pair to the role. Assigning a
// duplicate is an error, mirroring the aggregate rule.
func (s *RoleService) AssignPermission(ctx context.Context, roleID string, feature domain.Feature, action domain.Action) error {
	p, err := domain.NewPermission(feature, action)
	if err != nil {
		return err
	}

	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}

	if err := s.roles.AssignPermission(ctx, roleID, p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.ErrDuplicatePermission
		}
		return fmt.Errorf("assign permission: %w", err)
	}

	s.logger.Info("Permission assigned to role",
		zap.String("role_id", roleID),
		zap.String("permission", p.String()),
	)
	return nil
}

// RemovePermission drops a (feature, action) pair from the role.
func (s *RoleService) RemovePermission(ctx context.Context, roleID string, feature domain.Feature, action domain.Action) error {
	p, err := domain.NewPermission(feature, action)
	if err != nil {
		return err
	}

	if err := s.roles.RemovePermission(ctx, roleID, p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("remove permission: %w", err)
	}

	s.logger.Info("Permission removed from role",
		zap.String("role_id", roleID),
		zap.String("permission", p.String()),
	)
	return nil
}
