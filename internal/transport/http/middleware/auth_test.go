package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/infra/security"
)

func newAuthTestRouter(t *testing.T) (*gin.Engine, *security.TokenIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	issuer, err := security.NewTokenIssuer("middleware-test-secret", "library-iam", "library-platform", 15*time.Minute)
	if err != nil {
		t.Fatalf("new token issuer: %v", err)
	}

	r := gin.New()
	r.GET("/protected", RequireAuth(issuer), func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			c.String(http.StatusInternalServerError, "claims missing")
			return
		}
		c.String(http.StatusOK, claims.UserID)
	})

	return r, issuer
}

func get(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuthHeaderFormats(t *testing.T) {
	r, _ := newAuthTestRouter(t)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no scheme", "token-without-scheme"},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(r, tc.header)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	r, issuer := newAuthTestRouter(t)

	user := domain.User{
		ID:       "user-1",
		Username: "alice.smith",
		UserType: domain.UserTypeEmployee,
	}
	token, err := issuer.Generate(user, []string{"Librarian"}, []string{"Book:Read"})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	rec := get(r, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "user-1" {
		t.Fatalf("claims user id = %q", rec.Body.String())
	}

	// Scheme comparison is case-insensitive.
	rec = get(r, "bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("lowercase scheme status = %d", rec.Code)
	}
}
