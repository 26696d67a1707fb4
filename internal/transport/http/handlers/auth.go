package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chapterhouse/library-iam/internal/infra/security"
	"github.com/chapterhouse/library-iam/internal/transport/http/middleware"
	"github.com/chapterhouse/library-iam/internal/usecase"
)

// AuthHandler exposes the authentication endpoints.
type AuthHandler struct {
	auth   *usecase.AuthService
	issuer *security.TokenIssuer
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, issuer *security.TokenIssuer) *AuthHandler {
	return &AuthHandler{auth: auth, issuer: issuer}
}

// RegisterRoutes binds authentication routes. Logout requires a valid bearer
// token; login and refresh are anonymous by nature.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/login", h.login)
	r.POST("/refresh", h.refresh)
	r.POST("/logout", middleware.RequireAuth(h.issuer), h.logout)
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewProblem(http.StatusBadRequest, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Username, req.Password, req.RememberMe)
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases())
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresInSeconds,
		User:         toUserResponse(result.User),
	})
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewProblem(http.StatusBadRequest, "invalid refresh payload"))
		return
	}

	result, err := h.auth.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases())
		return
	}

	c.JSON(http.StatusOK, RefreshResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresInSeconds,
		TokenType:    result.TokenType,
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewProblem(http.StatusBadRequest, "invalid logout payload"))
		return
	}

	userID := req.UserID
	if userID == "" {
		// Default to the authenticated caller so clients need not repeat it.
		if claims, ok := middleware.ClaimsFromContext(c); ok {
			userID = claims.UserID
		}
	}

	if err := h.auth.Logout(c.Request.Context(), userID, req.RefreshToken); err != nil {
		RespondWithMappedError(c, err, authErrorCases())
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}
