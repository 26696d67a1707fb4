package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Feature enumerates the protected areas of the library platform.
type Feature string

const (
	FeatureBook      Feature = "Book"
	FeatureCategory  Feature = "Category"
	FeaturePublisher Feature = "Publisher"
	FeatureAuthor    Feature = "Author"
	FeatureLoan      Feature = "Loan"
	FeatureMember    Feature = "Member"
	FeatureUser      Feature = "User"
	FeatureRole      Feature = "Role"
	FeatureDashboard Feature = "Dashboard"
)

// Valid reports whether the value is one of the closed features.
func (f Feature) Valid() bool {
	switch f {
	case FeatureBook, FeatureCategory, FeaturePublisher, FeatureAuthor,
		FeatureLoan, FeatureMember, FeatureUser, FeatureRole, FeatureDashboard:
		return true
	}
	return false
}

// Action enumerates the operations a permission can grant on a feature.
type Action string

const (
	ActionCreate     Action = "Create"
	ActionRead       Action = "Read"
	ActionUpdate     Action = "Update"
	ActionDelete     Action = "Delete"
	ActionDeactivate Action = "Deactivate"
)

// Valid reports whether the value is one of the closed actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionDeactivate:
		return true
	}
	return false
}

var (
	// ErrInvalidPermission indicates the feature or action is outside the closed enumerations.
	ErrInvalidPermission = errors.New("invalid permission")
	// ErrDuplicatePermission indicates the role already carries the permission.
	ErrDuplicatePermission = errors.New("permission already assigned to role")
	// ErrInvalidRole indicates role name or description constraints are violated.
	ErrInvalidRole = errors.New("invalid role")
)

// Permission is an immutable (feature, action) value pair. Equality is
// structural, so Permission values can be compared with == and used as map
// keys directly.
type Permission struct {
	Feature Feature
	Action  Action
}

// NewPermission validates both halves against the closed enumerations.
func NewPermission(feature Feature, action Action) (Permission, error) {
	if !feature.Valid() {
		return Permission{}, fmt.Errorf("%w: unknown feature %q", ErrInvalidPermission, feature)
	}
	if !action.Valid() {
		return Permission{}, fmt.Errorf("%w: unknown action %q", ErrInvalidPermission, action)
	}
	return Permission{Feature: feature, Action: action}, nil
}

// String renders the wire form used in token claims, e.g. "Book:Update".
func (p Permission) String() string {
	return string(p.Feature) + ":" + string(p.Action)
}

// ParsePermission decodes the "Feature:Action" wire form.
func ParsePermission(s string) (Permission, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Permission{}, fmt.Errorf("%w: malformed %q", ErrInvalidPermission, s)
	}
	return NewPermission(Feature(parts[0]), Action(parts[1]))
}

// PermissionSet is the result of effective-permission resolution. For
// Administrator users the set carries a universal-match marker instead of
// an enumeration.
type PermissionSet struct {
	all     bool
	members map[Permission]struct{}
}

// NewPermissionSet builds an empty enumerated set.
func NewPermissionSet() PermissionSet {
	return PermissionSet{members: make(map[Permission]struct{})}
}

// AllPermissions returns the universal-match set.
func AllPermissions() PermissionSet {
	return PermissionSet{all: true}
}

// IsUniversal reports whether the set matches every permission.
func (s PermissionSet) IsUniversal() bool { return s.all }

// Add inserts a permission; duplicates are collapsed.
func (s PermissionSet) Add(p Permission) {
	if s.all || s.members == nil {
		return
	}
	s.members[p] = struct{}{}
}

// Remove deletes a permission if present.
func (s PermissionSet) Remove(p Permission) {
	if s.all || s.members == nil {
		return
	}
	delete(s.members, p)
}

// Contains reports membership; the universal set contains everything.
func (s PermissionSet) Contains(p Permission) bool {
	if s.all {
		return true
	}
	_, ok := s.members[p]
	return ok
}

// Len returns the number of enumerated members; zero for the universal set.
func (s PermissionSet) Len() int { return len(s.members) }

// Strings returns the sorted "Feature:Action" forms for token claims.
// The universal set returns nil; callers mark it via user type instead.
func (s PermissionSet) Strings() []string {
	if s.all || len(s.members) == 0 {
		return nil
	}
	values := make([]string, 0, len(s.members))
	for p := range s.members {
		values = append(values, p.String())
	}
	sort.Strings(values)
	return values
}

const (
	roleNameMinLen = 3
	roleNameMaxLen = 50
	roleDescMinLen = 10
	roleDescMaxLen = 256
)

// Role groups permissions under a name. Roles are deactivated, never
// deleted, so historical assignments stay resolvable.
type Role struct {
	ID          string
	Name        string
	Description string
	Permissions []Permission
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate enforces the name and description length constraints.
func (r Role) Validate() error {
	if l := len(r.Name); l < roleNameMinLen || l > roleNameMaxLen {
		return fmt.Errorf("%w: name must be between %d and %d characters", ErrInvalidRole, roleNameMinLen, roleNameMaxLen)
	}
	if l := len(r.Description); l < roleDescMinLen || l > roleDescMaxLen {
		return fmt.Errorf("%w: description must be between %d and %d characters", ErrInvalidRole, roleDescMinLen, roleDescMaxLen)
	}
	return nil
}

// HasPermission reports membership in the role's permission set.
func (r Role) HasPermission(p Permission) bool {
	for _, existing := range r.Permissions {
		if existing == p {
			return true
		}
	}
	return false
}

// AssignPermission adds a permission to the role; duplicates are an error.
func (r *Role) AssignPermission(p Permission) error {
	if r.HasPermission(p) {
		return ErrDuplicatePermission
	}
	r.Permissions = append(r.Permissions, p)
	return nil
}

// RemovePermission drops a permission from the role, reporting whether it
// was present.
func (r *Role) RemovePermission(p Permission) bool {
	for i, existing := range r.Permissions {
		if existing == p {
			r.Permissions = append(r.Permissions[:i], r.Permissions[i+1:]...)
			return true
		}
	}
	return false
}
