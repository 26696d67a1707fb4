package port

import (
	"context"

	"github.com/chapterhouse/library-iam/internal/core/domain"
)

// RoleRepository persists roles and their permission sets.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) error
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
	Update(ctx context.Context, role domain.Role) error
	Deactivate(ctx context.Context, id string) error

	// AssignPermission inserts a (role, feature, action) row; a duplicate
	// surfaces as repository.ErrConflict.
	AssignPermission(ctx context.Context, roleID string, p domain.Permission) error
	RemovePermission(ctx context.Context, roleID string, p domain.Permission) error

	ListByUser(ctx context.Context, userID string) ([]domain.Role, error)
}
