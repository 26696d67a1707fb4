package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/core/port"
	"github.com/chapterhouse/library-iam/internal/infra/security"
	"github.com/chapterhouse/library-iam/internal/repository"
)

// ErrPermissionDenied indicates an authenticated principal lacks the
// required permission. The transport maps it to 403.
var ErrPermissionDenied = errors.New("permission denied")

// ResolveEffectivePermissions computes a user's effective grants:
// Administrator gets the universal-match set, everyone else gets the union
// of role permissions minus the per-user denial set. Every permission
// check in the system funnels through this resolution; the Administrator
// bypass lives here and nowhere else.
func ResolveEffectivePermissions(user domain.User) domain.PermissionSet {
	if user.IsAdministrator() {
		return domain.AllPermissions()
	}

	set := domain.NewPermissionSet()
	for _, role := range user.Roles {
		if !role.IsActive {
			continue
		}
		for _, p := range role.Permissions {
			set.Add(p)
		}
	}
	for _, denied := range user.DeniedPermissions {
		set.Remove(denied)
	}

	return set
}

// UserHasPermission reports whether the user's effective set grants the
// (feature, action) pair.
func UserHasPermission(user domain.User, feature domain.Feature, action domain.Action) bool {
	return ResolveEffectivePermissions(user).Contains(domain.Permission{Feature: feature, Action: action})
}

// AuthorizeClaims evaluates a permission check against access-token claims
// without a store round-trip. Administrator tokens carry the user type
// marker instead of an enumeration and short-circuit to allow.
func AuthorizeClaims(claims *security.AccessTokenClaims, feature domain.Feature, action domain.Action) bool {
	if claims == nil {
		return false
	}
	if claims.UserType == string(domain.UserTypeAdministrator) {
		return true
	}

	required := domain.Permission{Feature: feature, Action: action}.String()
	for _, granted := range claims.Permissions {
		if granted == required {
			return true
		}
	}
	return false
}

// PermissionService exposes permission resolution and denial overrides.
type PermissionService struct {
	users  port.UserRepository
	logger *zap.Logger
}

// NewPermissionService constructs a PermissionService instance.
func NewPermissionService(users port.UserRepository, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionService{users: users, logger: logger}
}

// EffectivePermissions loads the user aggregate and resolves its grants.
func (s *PermissionService) EffectivePermissions(ctx context.Context, userID string) (domain.PermissionSet, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.PermissionSet{}, ErrUserNotFound
		}
		return domain.PermissionSet{}, fmt.Errorf("load user: %w", err)
	}

	return ResolveEffectivePermissions(*user), nil
}

// HasPermission reports whether the user may perform action on feature.
func (s *PermissionService) HasPermission(ctx context.Context, userID string, feature domain.Feature, action domain.Action) (bool, error) {
	set, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Contains(domain.Permission{Feature: feature, Action: action}), nil
}

// AddDeniedPermission records an unconditional denial override. Denying a
// permission the user's roles never granted is accepted: the denial simply
// pre-empts any future grant. Re-denying is a no-op.
func (s *PermissionService) AddDeniedPermission(ctx context.Context, userID string, feature domain.Feature, action domain.Action) error {
	p, err := domain.NewPermission(feature, action)
	if err != nil {
		return err
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}

	if err := s.users.AddDeniedPermission(ctx, userID, p); err != nil {
		return fmt.Errorf("add denied permission: %w", err)
	}

	s.logger.Info("Permission denied for user",
		zap.String("user_id", userID),
		zap.String("permission", p.String()),
	)
	return nil
}

// RemoveDeniedPermission lifts a denial override. Removing a permission
// that is not currently denied fails with a NotFound-class error.
func (s *PermissionService) RemoveDeniedPermission(ctx context.Context, userID string, feature domain.Feature, action domain.Action) error {
	p, err := domain.NewPermission(feature, action)
	if err != nil {
		return err
	}

	if err := s.users.RemoveDeniedPermission(ctx, userID, p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrPermissionNotDenied
		}
		return fmt.Errorf("remove denied permission: %w", err)
	}

	s.logger.Info("Permission denial lifted for user",
		zap.String("user_id", userID),
		zap.String("permission", p.String()),
	)
	return nil
}
