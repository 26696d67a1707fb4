package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chapterhouse/library-iam/internal/infra/security"
)

// Gin context keys populated by RequireAuth.
const (
	ClaimsKey = "claims"
	UserIDKey = "user_id"
)

// problem mirrors the handlers.Problem response shape so the middleware can
// answer without importing the handlers package.
type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

func unauthorized(detail string) problem {
	return problem{
		Title:  http.StatusText(http.StatusUnauthorized),
		Detail: detail,
		Status: http.StatusUnauthorized,
	}
}

// RequireAuth validates the Authorization bearer token and stores the parsed
// claims in the request context for downstream handlers.
func RequireAuth(issuer *security.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				unauthorized("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				unauthorized("invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				unauthorized("missing access token"))
			return
		}

		claims, err := issuer.Parse(token)
		if err != nil {
			switch {
			case errors.Is(err, security.ErrExpiredAccessToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					unauthorized("access token expired"))
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					unauthorized("invalid access token"))
			}
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.UserID)

		c.Next()
	}
}

// ClaimsFromContext returns the access token claims stored by RequireAuth.
func ClaimsFromContext(c *gin.Context) (*security.AccessTokenClaims, bool) {
	value, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}

	claims, ok := value.(*security.AccessTokenClaims)
	return claims, ok
}
