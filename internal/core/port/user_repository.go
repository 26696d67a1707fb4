package port

import (
	"context"

	"github.com/chapterhouse/library-iam/internal/core/domain"
)

// UserRepository persists the user aggregate. Lookup methods return the
// aggregate with roles (including role permissions) and denied permissions
// loaded; refresh tokens are managed through TokenRepository.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByExternalID(ctx context.Context, externalID int64) (*domain.User, error)
	// GetByUsername matches the stored username exactly: no trimming, no
	// case folding. A username with surrounding whitespace misses.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	// Update applies an optimistic version check; a concurrent writer
	// surfaces as repository.ErrConflict.
	Update(ctx context.Context, user domain.User) error
	Deactivate(ctx context.Context, id string) error

	AssignRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error

	AddDeniedPermission(ctx context.Context, userID string, p domain.Permission) error
	RemoveDeniedPermission(ctx context.Context, userID string, p domain.Permission) error
}
