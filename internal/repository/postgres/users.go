package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/core/port"
	"github.com/chapterhouse/library-iam/internal/repository"
)

var userColumns = []string{
	"id",
	"external_id",
	"first_name",
	"last_name",
	"username",
	"password_hash",
	"email",
	"phone",
	"user_type",
	"is_active",
	"version",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserRepository using PostgreSQL. Lookups
// hydrate the full aggregate: assigned roles with their permission sets
// plus the per-user denial set.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a new user repository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a user row and returns the aggregate with the
// sequence-assigned external id populated.
func (r *UserRepository) Create(ctx context.Context, user domain.User) (*domain.User, error) {
	stmt, args, err := r.builder.Insert("iam.users").
		Columns(
			"id",
			"first_name",
			"last_name",
			"username",
			"password_hash",
			"email",
			"phone",
			"user_type",
			"is_active",
			"version",
			"created_at",
			"updated_at",
		).
		Values(
			user.ID,
			user.FirstName,
			user.LastName,
			user.Username,
			user.PasswordHash,
			user.Email,
			user.Phone,
			string(user.UserType),
			user.IsActive,
			user.Version,
			user.CreatedAt,
			user.UpdatedAt,
		).
		Suffix("RETURNING external_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert user sql: %w", err)
	}

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&user.ExternalID); err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &user, nil
}

// GetByID retrieves a user aggregate by its primary id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByExternalID retrieves a user aggregate by its sequential external id.
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID int64) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"external_id": externalID})
}

// GetByUsername retrieves a user aggregate by exact username match.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"username": username})
}

// UsernameExists reports whether a user row already carries the username.
func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		From("iam.users").
		Where(squirrel.Eq{"username": username}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build username exists sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check username exists: %w", err)
	}

	return true, nil
}

// Update persists mutable user fields guarded by an optimistic version
// check. A concurrent writer bumps the version first, the stale update
// matches zero rows and surfaces as ErrConflict.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("first_name", user.FirstName).
		Set("last_name", user.LastName).
		Set("email", user.Email).
		Set("phone", user.Phone).
		Set("user_type", string(user.UserType)).
		Set("is_active", user.IsActive).
		Set("password_hash", user.PasswordHash).
		Set("version", user.Version+1).
		Set("updated_at", user.UpdatedAt).
		Where(squirrel.Eq{"id": user.ID, "version": user.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		exists, err := r.idExists(ctx, user.ID)
		if err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrConflict
	}

	return nil
}

// Deactivate flags the user inactive. Rows are never deleted, so historic
// refresh tokens and audit trails keep resolving.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("is_active", false).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// AssignRole links a role to a user. A duplicate assignment trips the
// composite primary key and surfaces as ErrConflict.
func (r *UserRepository) AssignRole(ctx context.Context, userID, roleID string) error {
	stmt, args, err := r.builder.Insert("iam.user_roles").
		Columns("user_id", "role_id").
		Values(userID, roleID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build assign role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("assign role: %w", err)
	}

	return nil
}

// RemoveRole unlinks a role from a user.
func (r *UserRepository) RemoveRole(ctx context.Context, userID, roleID string) error {
	stmt, args, err := r.builder.Delete("iam.user_roles").
		Where(squirrel.Eq{"user_id": userID, "role_id": roleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build remove role sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("remove role: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// AddDeniedPermission records a per-user denial override. The insert is
// idempotent: denying an already denied permission changes nothing.
func (r *UserRepository) AddDeniedPermission(ctx context.Context, userID string, p domain.Permission) error {
	stmt, args, err := r.builder.Insert("iam.user_denied_permissions").
		Columns("user_id", "feature", "action").
		Values(userID, string(p.Feature), string(p.Action)).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build add denied permission sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("add denied permission: %w", err)
	}

	return nil
}

// RemoveDeniedPermission lifts a denial override. Removing a permission
// that is not denied surfaces as ErrNotFound.
func (r *UserRepository) RemoveDeniedPermission(ctx context.Context, userID string, p domain.Permission) error {
	stmt, args, err := r.builder.Delete("iam.user_denied_permissions").
		Where(squirrel.Eq{
			"user_id": userID,
			"feature": string(p.Feature),
			"action":  string(p.Action),
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build remove denied permission sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("remove denied permission: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("iam.users").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, err
	}

	if user.Roles, err = r.loadRoles(ctx, user.ID); err != nil {
		return nil, err
	}
	if user.DeniedPermissions, err = r.loadDeniedPermissions(ctx, user.ID); err != nil {
		return nil, err
	}

	return user, nil
}

func (r *UserRepository) idExists(ctx context.Context, id string) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		From("iam.users").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build user exists sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check user exists: %w", err)
	}

	return true, nil
}

func (r *UserRepository) loadRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select(prefixColumns("r", roleColumns)...).
		From("iam.roles r").
		Join("iam.user_roles ur ON ur.role_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("r.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user roles: %w", err)
	}

	return attachRolePermissions(ctx, r.exec, r.builder, roles)
}

func (r *UserRepository) loadDeniedPermissions(ctx context.Context, userID string) ([]domain.Permission, error) {
	stmt, args, err := r.builder.Select("feature", "action").
		From("iam.user_denied_permissions").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("feature", "action").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select denied permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list denied permissions: %w", err)
	}
	defer rows.Close()

	var denied []domain.Permission
	for rows.Next() {
		var feature, action string
		if err := rows.Scan(&feature, &action); err != nil {
			return nil, fmt.Errorf("scan denied permission: %w", err)
		}
		denied = append(denied, domain.Permission{
			Feature: domain.Feature(feature),
			Action:  domain.Action(action),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate denied permissions: %w", err)
	}

	return denied, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user     domain.User
		phone    sql.NullString
		userType string
	)

	if err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&user.FirstName,
		&user.LastName,
		&user.Username,
		&user.PasswordHash,
		&user.Email,
		&phone,
		&userType,
		&user.IsActive,
		&user.Version,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if phone.Valid {
		p := phone.String
		user.Phone = &p
	}
	user.UserType = domain.UserType(userType)

	return &user, nil
}

func prefixColumns(alias string, columns []string) []string {
	prefixed := make([]string, 0, len(columns))
	for _, c := range columns {
		prefixed = append(prefixed, alias+"."+c)
	}
	return prefixed
}

var _ port.UserRepository = (*UserRepository)(nil)
