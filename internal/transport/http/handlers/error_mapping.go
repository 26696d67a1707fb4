package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code.
type ErrorCase struct {
	Err    error
	Status int
}

// NewProblem builds the error body for a status code and detail message.
func NewProblem(status int, detail string) Problem {
	return Problem{
		Title:  http.StatusText(status),
		Detail: detail,
		Status: status,
	}
}

// RespondWithMappedError resolves the error against known cases, checking
// field validation failures first, and falls back to a 500 response. Mapped
// responses always carry the sentinel's own message as the detail.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	if vErr, ok := usecase.AsValidationError(err); ok {
		p := NewProblem(http.StatusBadRequest, "One or more validation errors occurred")
		p.Errors = vErr.Fields
		c.JSON(http.StatusBadRequest, p)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewProblem(cs.Status, cs.Err.Error()))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError,
		NewProblem(http.StatusInternalServerError, "An unexpected error occurred"))
}

// authErrorCases covers the credential and token sentinels. Credential
// failures answer 400, never 401; the bearer check is the only source of
// 401 on this API.
func authErrorCases() []ErrorCase {
	return []ErrorCase{
		{Err: usecase.ErrInvalidUsername, Status: http.StatusBadRequest},
		{Err: usecase.ErrInvalidPassword, Status: http.StatusBadRequest},
		{Err: usecase.ErrRefreshTokenInvalid, Status: http.StatusBadRequest},
		{Err: usecase.ErrRefreshTokenRevoked, Status: http.StatusBadRequest},
		{Err: usecase.ErrUserNotFound, Status: http.StatusBadRequest},
	}
}

func adminErrorCases() []ErrorCase {
	return []ErrorCase{
		{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound},
		{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound},
		{Err: usecase.ErrUsernameTaken, Status: http.StatusConflict},
		{Err: usecase.ErrRoleNameTaken, Status: http.StatusConflict},
		{Err: domain.ErrDuplicateRoleAssignment, Status: http.StatusConflict},
		{Err: domain.ErrDuplicatePermission, Status: http.StatusConflict},
		{Err: domain.ErrPermissionNotDenied, Status: http.StatusBadRequest},
		{Err: domain.ErrInvalidPermission, Status: http.StatusBadRequest},
		{Err: domain.ErrInvalidRole, Status: http.StatusBadRequest},
	}
}
