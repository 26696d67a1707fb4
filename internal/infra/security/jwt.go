package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chapterhouse/library-iam/internal/core/domain"
)

var (
	// ErrInvalidAccessToken indicates the token is malformed or its signature failed validation.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates the token elapsed its validity window.
	ErrExpiredAccessToken = errors.New("access token expired")
)

// AccessTokenClaims carries identity and authorization context inside the
// signed token so protected endpoints authorize without a store round-trip.
// Permissions use the "Feature:Action" wire form; Administrator users are
// marked by UserType and carry no enumeration.
type AccessTokenClaims struct {
	UserID      string   `json:"uid"`
	ExternalID  int64    `json:"externalId"`
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	UserType    string   `json:"userType"`
	Roles       []string `json:"role,omitempty"`
	Permissions []string `json:"permission,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer builds and parses signed access tokens (HS256 over a
// configured secret). Issued-at and expiry are truncated to second
// resolution, so two calls with identical claims inside the same second
// legitimately produce identical tokens; callers requiring distinct tokens
// must wait or add entropy.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer from the signing configuration.
func NewTokenIssuer(secret, issuer, audience string, ttl time.Duration) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &TokenIssuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the issuer clock for deterministic tests.
func (i *TokenIssuer) WithClock(clock func() time.Time) {
	if clock != nil {
		i.now = clock
	}
}

// TTL returns the configured access token lifetime.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Generate signs a token for the user with the supplied role and
// permission claims. The subject claim is the username.
func (i *TokenIssuer) Generate(user domain.User, roles []string, permissions []string) (string, error) {
	if user.Username == "" {
		return "", fmt.Errorf("username is required")
	}

	issuedAt := i.now().Truncate(time.Second)

	var audience jwt.ClaimStrings
	if i.audience != "" {
		audience = append(audience, i.audience)
	}

	claims := AccessTokenClaims{
		UserID:      user.ID,
		ExternalID:  user.ExternalID,
		Email:       user.Email,
		Name:        user.FullName(),
		UserType:    string(user.UserType),
		Roles:       roles,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			Issuer:    i.issuer,
			Audience:  audience,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Parse validates a signed access token and returns its claims.
func (i *TokenIssuer) Parse(token string) (*AccessTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidAccessToken
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(i.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if i.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(i.issuer))
	}
	if i.audience != "" {
		parserOptions = append(parserOptions, jwt.WithAudience(i.audience))
	}

	claims := &AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}
