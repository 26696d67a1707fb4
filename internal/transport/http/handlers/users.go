package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/usecase"
)

// UserHandler exposes user administration endpoints.
type UserHandler struct {
	users       *usecase.UserService
	permissions *usecase.PermissionService
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users *usecase.UserService, permissions *usecase.PermissionService) *UserHandler {
	return &UserHandler{users: users, permissions: permissions}
}

// RegisterRoutes binds user administration routes. Each route carries the
// permission guard for its feature and action.
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup, guard PermissionGuard) {
	r.POST("", guard(domain.FeatureUser, domain.ActionCreate), h.create)
	r.GET("/:id", guard(domain.FeatureUser, domain.ActionRead), h.get)
	r.DELETE("/:id", guard(domain.FeatureUser, domain.ActionDeactivate), h.deactivate)
	r.POST("/:id/roles", guard(domain.FeatureUser, domain.ActionUpdate), h.assignRole)
	r.DELETE("/:id/roles/:roleId", guard(domain.FeatureUser, domain.ActionUpdate), h.removeRole)
	r.GET("/:id/permissions", guard(domain.FeatureUser, domain.ActionRead), h.effectivePermissions)
	r.POST("/:id/denied-permissions", guard(domain.FeatureUser, domain.ActionUpdate), h.denyPermission)
	r.DELETE("/:id/denied-permissions/:feature/:action", guard(domain.FeatureUser, domain.ActionUpdate), h.restorePermission)
}

func (h *UserHandler) create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewProblem(http.StatusBadRequest, "invalid user payload"))
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), usecase.CreateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		UserType:  domain.UserType(req.UserType),
		Password:  req.Password,
	})
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(*user))
}

func (h *UserHandler) get(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusOK, toUserResponse(*user))
}

func (h *UserHandler) deactivate(c *gin.Context) {
	if err := h.users.DeactivateUser(c.Request.Context(), c.Param("id")); err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "user deactivated"})
}

func (h *UserHandler) assignRole(c *gin.Context) {
	var req RoleAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoleID == "" {
		c.JSON(http.StatusBadRequest, NewProblem(http.StatusBadRequest, "roleId is required"))
		return
	}

	if err := h.users.AssignRole(c.Request.Context(), c.Param("id"), req.RoleID); err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "role assigned"})
}

func (h *UserHandler) removeRole(c *gin.Context) {
	if err := h.users.RemoveRole(c.Request.Context(), c.Param("id"), c.Param("roleId")); err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "role removed"})
}

func (h *UserHandler) effectivePermissions(c *gin.Context) {
	set, err := h.permissions.EffectivePermissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusOK, PermissionsResponse{
		Administrator: set.IsUniversal(),
		Permissions:   set.Strings(),
	})
}

func (h *UserHandler) denyPermission(c *gin.Context) {
	var req PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewProblem(http.StatusBadRequest, "invalid permission payload"))
		return
	}

	err := h.permissions.AddDeniedPermission(c.Request.Context(), c.Param("id"),
		domain.Feature(req.Feature), domain.Action(req.Action))
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "permission denied for user"})
}

func (h *UserHandler) restorePermission(c *gin.Context) {
	err := h.permissions.RemoveDeniedPermission(c.Request.Context(), c.Param("id"),
		domain.Feature(c.Param("feature")), domain.Action(c.Param("action")))
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "permission restored for user"})
}
