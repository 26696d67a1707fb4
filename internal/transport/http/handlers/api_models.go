package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/usecase"
)

// PermissionGuard builds the authorization middleware for a single feature
// and action. The transport layer supplies it so handlers stay free of
// middleware wiring.
type PermissionGuard func(feature domain.Feature, action domain.Action) gin.HandlerFunc

// Problem is the error body returned by every failing endpoint.
type Problem struct {
	Title  string               `json:"title"`
	Detail string               `json:"detail"`
	Status int                  `json:"status"`
	Errors []usecase.FieldError `json:"errors,omitempty"`
}

// MessageResponse is a generic acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest carries the credential pair presented by the client.
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// LoginResponse is the successful login body.
type LoginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresInSeconds"`
	User         UserResponse `json:"user"`
}

// RefreshRequest carries the refresh token being exchanged.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse is the successful rotation body.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresInSeconds"`
	TokenType    string `json:"tokenType"`
}

// LogoutRequest identifies the session being terminated.
type LogoutRequest struct {
	UserID       string `json:"userId"`
	RefreshToken string `json:"refreshToken"`
}

// CreateUserRequest carries the fields for user provisioning.
type CreateUserRequest struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone,omitempty"`
	UserType  string  `json:"userType"`
	Password  string  `json:"password"`
}

// UserResponse is the sanitized user representation. The password hash is
// never serialized.
type UserResponse struct {
	ID          string         `json:"id"`
	ExternalID  int64          `json:"externalId"`
	FirstName   string         `json:"firstName"`
	LastName    string         `json:"lastName"`
	Username    string         `json:"username"`
	Email       string         `json:"email"`
	Phone       *string        `json:"phone,omitempty"`
	UserType    string         `json:"userType"`
	IsActive    bool           `json:"isActive"`
	Roles       []RoleResponse `json:"roles,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// RoleResponse is the role representation with its permission grants.
type RoleResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreateRoleRequest carries the fields for role creation.
type CreateRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// UpdateRoleRequest carries the mutable role fields.
type UpdateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PermissionRequest names a single feature and action pair.
type PermissionRequest struct {
	Feature string `json:"feature"`
	Action  string `json:"action"`
}

// RoleAssignmentRequest names the role being attached or detached.
type RoleAssignmentRequest struct {
	RoleID string `json:"roleId"`
}

// PermissionsResponse lists effective permissions in wire form. A null list
// with administrator=true means the universal set.
type PermissionsResponse struct {
	Administrator bool     `json:"administrator"`
	Permissions   []string `json:"permissions"`
}

func toUserResponse(user domain.User) UserResponse {
	resp := UserResponse{
		ID:         user.ID,
		ExternalID: user.ExternalID,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Username:   user.Username,
		Email:      user.Email,
		Phone:      user.Phone,
		UserType:   string(user.UserType),
		IsActive:   user.IsActive,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}

	for _, role := range user.Roles {
		resp.Roles = append(resp.Roles, toRoleResponse(role))
	}

	return resp
}

func toRoleResponse(role domain.Role) RoleResponse {
	permissions := make([]string, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		permissions = append(permissions, p.String())
	}

	return RoleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		IsActive:    role.IsActive,
		Permissions: permissions,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}
