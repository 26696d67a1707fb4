package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/core/port"
	"github.com/chapterhouse/library-iam/internal/infra/config"
	"github.com/chapterhouse/library-iam/internal/infra/security"
	"github.com/chapterhouse/library-iam/internal/repository"
)

const refreshTokenByteLength = 32

// RotationService drives the refresh-token lifecycle: issue, validate,
// rotate, revoke. A token moves from issued to revoked exactly once;
// expiry is never stored, it is derived from ExpiresAt at validation time.
type RotationService struct {
	store  port.UnitOfWork
	tokens port.TokenRepository
	index  port.TokenIndex
	auth   config.AuthSettings
	logger *zap.Logger
	now    func() time.Time
}

// NewRotationService constructs a RotationService instance. The token
// index is optional; a nil index disables the cache read and warm paths.
func NewRotationService(
	store port.UnitOfWork,
	tokens port.TokenRepository,
	index port.TokenIndex,
	auth config.AuthSettings,
	logger *zap.Logger,
) *RotationService {
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &RotationService{
		store:  store,
		tokens: tokens,
		index:  index,
		auth:   auth,
		logger: logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *RotationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Issue creates and persists a refresh token for the user. Remember-me
// tokens live RefreshTokenExpiryDays; others carry the short sliding
// window. The raw value is returned once and only its hash is stored.
func (s *RotationService) Issue(ctx context.Context, userID string, rememberMe bool) (string, *domain.RefreshToken, error) {
	var (
		value string
		token *domain.RefreshToken
	)

	err := s.store.Do(ctx, func(repos port.RepositorySet) error {
		var err error
		value, token, err = s.issueInto(ctx, repos.Tokens, userID, rememberMe)
		return err
	})
	if err != nil {
		return "", nil, err
	}

	s.cacheToken(ctx, token)
	return value, token, nil
}

// Validate resolves a token value to its stored record, via the hash
// index rather than any scan over users. An unknown token fails with
// ErrUserNotFound; a revoked or expired one with ErrRefreshTokenInvalid.
func (s *RotationService) Validate(ctx context.Context, value string) (*domain.RefreshToken, error) {
	hash := security.HashToken(value)
	cachedOwner := s.cachedOwner(ctx, hash)

	token, err := s.tokens.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if cachedOwner != "" {
				// The cache outlived the row; evict the stale entry.
				s.dropToken(ctx, hash)
			}
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if !token.IsActive(s.now()) {
		return nil, ErrRefreshTokenInvalid
	}

	return token, nil
}

// Rotate revokes the presented token and issues a successor inheriting
// its remember-me flag, committing both mutations atomically. The revoke
// is a compare-and-set on the stored row, so of N concurrent rotations of
// one token exactly one wins; every loser observes the token as already
// revoked and fails without producing a successor.
func (s *RotationService) Rotate(ctx context.Context, value string) (*domain.User, string, *domain.RefreshToken, error) {
	hash := security.HashToken(value)

	var (
		user      *domain.User
		newValue  string
		successor *domain.RefreshToken
	)

	err := s.store.Do(ctx, func(repos port.RepositorySet) error {
		token, err := repos.Tokens.GetByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lookup refresh token: %w", err)
		}

		now := s.now()
		if !token.IsActive(now) {
			return ErrRefreshTokenInvalid
		}

		if err := repos.Tokens.Revoke(ctx, token.ID, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Lost the race: another rotation revoked it first.
				return ErrRefreshTokenInvalid
			}
			return fmt.Errorf("revoke refresh token: %w", err)
		}

		newValue, successor, err = s.issueInto(ctx, repos.Tokens, token.UserID, token.IsRememberMe)
		if err != nil {
			return err
		}

		user, err = repos.Users.GetByID(ctx, token.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load token owner: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, "", nil, err
	}

	s.dropToken(ctx, hash)
	s.cacheToken(ctx, successor)

	s.logger.Info("Refresh token rotated",
		zap.String("user_id", user.ID),
		zap.String("token_id", successor.ID),
	)

	return user, newValue, successor, nil
}

// Revoke is the explicit logout path. The token must exist and belong to
// expectedUserID; revoking an already revoked token is an error, not a
// no-op, so a replayed logout is visible to the caller.
func (s *RotationService) Revoke(ctx context.Context, value, expectedUserID string) error {
	hash := security.HashToken(value)

	// An index hit for a different owner settles the ownership check
	// without opening a transaction.
	if owner := s.cachedOwner(ctx, hash); owner != "" && owner != expectedUserID {
		return ErrUserNotFound
	}

	err := s.store.Do(ctx, func(repos port.RepositorySet) error {
		token, err := repos.Tokens.GetByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lookup refresh token: %w", err)
		}

		if token.UserID != expectedUserID {
			return ErrUserNotFound
		}
		if token.IsRevoked() {
			return ErrRefreshTokenRevoked
		}

		if err := repos.Tokens.Revoke(ctx, token.ID, s.now()); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRefreshTokenRevoked
			}
			return fmt.Errorf("revoke refresh token: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.dropToken(ctx, hash)
	return nil
}

func (s *RotationService) issueInto(ctx context.Context, tokens port.TokenRepository, userID string, rememberMe bool) (string, *domain.RefreshToken, error) {
	value, err := security.GenerateRefreshToken(refreshTokenByteLength)
	if err != nil {
		return "", nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.now()
	ttl := s.auth.SlidingTTL()
	if rememberMe {
		ttl = s.auth.RememberMeTTL()
	}

	token := domain.RefreshToken{
		ID:           uuid.NewString(),
		UserID:       userID,
		TokenHash:    security.HashToken(value),
		IsRememberMe: rememberMe,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}

	if err := tokens.Create(ctx, token); err != nil {
		return "", nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return value, &token, nil
}

// cachedOwner resolves the token hash through the Redis index. It returns
// the empty string on a miss, a disabled index, or any index error; the
// caller falls back to the authoritative store.
func (s *RotationService) cachedOwner(ctx context.Context, hash string) string {
	if s.index == nil {
		return ""
	}

	owner, err := s.index.Get(ctx, hash)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Failed to read refresh token index entry", zap.Error(err))
		}
		return ""
	}

	return owner
}

// cacheToken and dropToken keep the Redis hash index warm. Both are best
// effort: the database index stays authoritative, so failures only cost a
// fallback read and are logged, never surfaced.
func (s *RotationService) cacheToken(ctx context.Context, token *domain.RefreshToken) {
	if s.index == nil || token == nil {
		return
	}

	ttl := token.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}

	if err := s.index.Set(ctx, token.TokenHash, token.UserID, ttl); err != nil {
		s.logger.Warn("Failed to cache refresh token index entry", zap.Error(err))
	}
}

func (s *RotationService) dropToken(ctx context.Context, hash string) {
	if s.index == nil {
		return
	}

	if err := s.index.Delete(ctx, hash); err != nil {
		s.logger.Warn("Failed to drop refresh token index entry", zap.Error(err))
	}
}
