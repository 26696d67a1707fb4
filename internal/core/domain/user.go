package domain

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// UserType enumerates the account categories recognised by the platform.
type UserType string

const (
	UserTypeCustomer      UserType = "Customer"
	UserTypeEmployee      UserType = "Employee"
	UserTypeAdministrator UserType = "Administrator"
)

// Valid reports whether the value is one of the closed user types.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeCustomer, UserTypeEmployee, UserTypeAdministrator:
		return true
	}
	return false
}

var (
	// ErrDuplicateRoleAssignment indicates the user already carries the role.
	ErrDuplicateRoleAssignment = errors.New("role already assigned to user")
	// ErrPermissionNotDenied indicates the permission is not currently denied for the user.
	ErrPermissionNotDenied = errors.New("permission is not denied for user")
)

// User is the identity aggregate. Roles and DeniedPermissions are owned
// sets; RefreshTokens is an append-only list (revoked tokens are kept for
// replay detection, never deleted).
type User struct {
	ID                string
	ExternalID        int64
	FirstName         string
	LastName          string
	Username          string
	PasswordHash      string
	Email             string
	Phone             *string
	UserType          UserType
	IsActive          bool
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Roles             []Role
	DeniedPermissions []Permission
	RefreshTokens     []RefreshToken
}

// FullName joins the first and last name for display and token claims.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsAdministrator reports whether the user bypasses permission checks.
func (u User) IsAdministrator() bool {
	return u.UserType == UserTypeAdministrator
}

// HasRole reports whether a role with the given name is assigned.
func (u User) HasRole(name string) bool {
	for _, role := range u.Roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

// AssignRole appends a role to the owned set, rejecting duplicates by id.
func (u *User) AssignRole(role Role) error {
	for _, existing := range u.Roles {
		if existing.ID == role.ID {
			return ErrDuplicateRoleAssignment
		}
	}
	u.Roles = append(u.Roles, role)
	return nil
}

// RoleNames returns the names of all assigned roles.
func (u User) RoleNames() []string {
	if len(u.Roles) == 0 {
		return nil
	}
	names := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		names = append(names, role.Name)
	}
	return names
}

// IsDenied reports whether the permission is in the denial set.
func (u User) IsDenied(p Permission) bool {
	for _, denied := range u.DeniedPermissions {
		if denied == p {
			return true
		}
	}
	return false
}

// DenyPermission adds a permission to the denial set. Adding an already
// denied permission is a no-op; the method reports whether the set changed.
func (u *User) DenyPermission(p Permission) bool {
	if u.IsDenied(p) {
		return false
	}
	u.DeniedPermissions = append(u.DeniedPermissions, p)
	return true
}

// AllowPermission removes a permission from the denial set. It fails when
// the permission is not currently denied.
func (u *User) AllowPermission(p Permission) error {
	for i, denied := range u.DeniedPermissions {
		if denied == p {
			u.DeniedPermissions = append(u.DeniedPermissions[:i], u.DeniedPermissions[i+1:]...)
			return nil
		}
	}
	return ErrPermissionNotDenied
}

// UsernameBase derives the canonical username stem from a person's name:
// lowercase "first.last" with non-alphanumeric runes stripped. Uniqueness
// suffixes are applied by the caller against the store. The generated
// username is stored verbatim and is never trimmed or case-folded at login.
func UsernameBase(firstName, lastName string) string {
	first := sanitizeNamePart(firstName)
	last := sanitizeNamePart(lastName)

	switch {
	case first == "" && last == "":
		return ""
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + "." + last
}

func sanitizeNamePart(part string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(part)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
