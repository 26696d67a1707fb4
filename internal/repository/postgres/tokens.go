package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/core/port"
	"github.com/chapterhouse/library-iam/internal/repository"
)

var refreshTokenColumns = []string{
	"id",
	"user_id",
	"token_hash",
	"is_remember_me",
	"created_at",
	"expires_at",
	"revoked_at",
}

// TokenRepository implements port.TokenRepository using PostgreSQL.
// The refresh_tokens table carries a unique index on token_hash, so token
// lookup never degrades into a scan over users.
type TokenRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a new token repository.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create appends a refresh token row for its owning user.
func (r *TokenRepository) Create(ctx context.Context, token domain.RefreshToken) error {
	stmt, args, err := r.builder.Insert("iam.refresh_tokens").
		Columns(refreshTokenColumns...).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			token.IsRememberMe,
			token.CreatedAt,
			token.ExpiresAt,
			optionalTime(token.RevokedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetByHash retrieves a refresh token record through the token_hash index.
func (r *TokenRepository) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	stmt, args, err := r.builder.Select(refreshTokenColumns...).
		From("iam.refresh_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	return scanRefreshToken(row)
}

// Revoke marks a refresh token as revoked only when it is not revoked yet.
// The revoked_at IS NULL guard is the compare-and-set that serializes
// concurrent rotations: exactly one caller flips the row, every other
// caller sees zero rows affected and gets ErrNotFound.
func (r *TokenRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("iam.refresh_tokens").
		Set("revoked_at", at.UTC()).
		Where(squirrel.Eq{"id": id}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke refresh token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListByUser returns the user's full refresh-token history, newest first.
func (r *TokenRepository) ListByUser(ctx context.Context, userID string) ([]domain.RefreshToken, error) {
	stmt, args, err := r.builder.Select(refreshTokenColumns...).
		From("iam.refresh_tokens").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list refresh tokens sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.RefreshToken
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh tokens: %w", err)
	}

	return tokens, nil
}

func scanRefreshToken(row pgx.Row) (*domain.RefreshToken, error) {
	var (
		token     domain.RefreshToken
		revokedAt sql.NullTime
	)

	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.IsRememberMe,
		&token.CreatedAt,
		&token.ExpiresAt,
		&revokedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	if revokedAt.Valid {
		t := revokedAt.Time
		token.RevokedAt = &t
	}

	return &token, nil
}

func optionalTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC()
}

var _ port.TokenRepository = (*TokenRepository)(nil)
