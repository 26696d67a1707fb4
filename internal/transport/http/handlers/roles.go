package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/usecase"
)

// RoleHandler exposes role administration endpoints.
type RoleHandler struct {
	roles *usecase.RoleService
}

// NewRoleHandler constructs RoleHandler.
func NewRoleHandler(roles *usecase.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// RegisterRoutes binds role administration routes. Each route carries the
// permission guard for its feature and action.
func (h *RoleHandler) RegisterRoutes(r *gin.RouterGroup, guard PermissionGuard) {
	r.POST("", guard(domain.FeatureRole, domain.ActionCreate), h.create)
	r.GET("", guard(domain.FeatureRole, domain.ActionRead), h.list)
	r.GET("/:id", guard(domain.FeatureRole, domain.ActionRead), h.get)
	r.PUT("/:id", guard(domain.FeatureRole, domain.ActionUpdate), h.update)
	r.DELETE("/:id", guard(domain.FeatureRole, domain.ActionDeactivate), h.deactivate)
	r.POST("/:id/permissions", guard(domain.FeatureRole, domain.ActionUpdate), h.assignPermission)
	r.DELETE("/:id/permissions/:feature/:action", guard(domain.FeatureRole, domain.ActionUpdate), h.removePermission)
}

func (h *RoleHandler) create(c *gin.Context) {
	var req CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewProblem(http.StatusBadRequest, "invalid role payload"))
		return
	}

	permissions := make([]domain.Permission, 0, len(req.Permissions))
	for _, raw := range req.Permissions {
		permission, err := domain.ParsePermission(raw)
		if err != nil {
			RespondWithMappedError(c, err, adminErrorCases())
			return
		}
		permissions = append(permissions, permission)
	}

	role, err := h.roles.CreateRole(c.Request.Context(), req.Name, req.Description, permissions)
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusCreated, toRoleResponse(*role))
}

func (h *RoleHandler) list(c *gin.Context) {
	roles, err := h.roles.ListRoles(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	out := make([]RoleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}

	c.JSON(http.StatusOK, out)
}

func (h *RoleHandler) get(c *gin.Context) {
	role, err := h.roles.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusOK, toRoleResponse(*role))
}

func (h *RoleHandler) update(c *gin.Context) {
	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewProblem(http.StatusBadRequest, "invalid role payload"))
		return
	}

	role, err := h.roles.UpdateRole(c.Request.Context(), c.Param("id"), req.Name, req.Description)
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusOK, toRoleResponse(*role))
}

func (h *RoleHandler) deactivate(c *gin.Context) {
	if err := h.roles.DeactivateRole(c.Request.Context(), c.Param("id")); err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "role deactivated"})
}

func (h *RoleHandler) assignPermission(c *gin.Context) {
	var req PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewProblem(http.StatusBadRequest, "invalid permission payload"))
		return
	}

	err := h.roles.AssignPermission(c.Request.Context(), c.Param("id"),
		domain.Feature(req.Feature), domain.Action(req.Action))
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "permission assigned"})
}

func (h *RoleHandler) removePermission(c *gin.Context) {
	err := h.roles.RemovePermission(c.Request.Context(), c.Param("id"),
		domain.Feature(c.Param("feature")), domain.Action(c.Param("action")))
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases())
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "permission removed"})
}
