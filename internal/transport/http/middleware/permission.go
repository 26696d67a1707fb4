package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/usecase"
)

// RequirePermission authorizes the request against the claims stored by
// RequireAuth. Administrators pass every check; other users must carry the
// exact feature and action claim.
func RequirePermission(feature domain.Feature, action domain.Action) gin.HandlerFunc {
	required := domain.Permission{Feature: feature, Action: action}

	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				unauthorized("missing access token"))
			return
		}

		if !usecase.AuthorizeClaims(claims, feature, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, problem{
				Title:  http.StatusText(http.StatusForbidden),
				Detail: "missing required permission " + required.String(),
				Status: http.StatusForbidden,
			})
			return
		}

		c.Next()
	}
}
