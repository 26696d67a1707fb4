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

var roleColumns = []string{
	"id",
	"name",
	"description",
	"is_active",
	"created_at",
	"updated_at",
}

// RoleRepository implements port.RoleRepository using PostgreSQL.
type RoleRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a new role repository.
func NewRoleRepository(pool *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a role row together with its initial permission set.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Insert("iam.roles").
		Columns(roleColumns...).
		Values(
			role.ID,
			role.Name,
			role.Description,
			role.IsActive,
			role.CreatedAt,
			role.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert role: %w", err)
	}

	for _, p := range role.Permissions {
		if err := r.AssignPermission(ctx, role.ID, p); err != nil {
			return err
		}
	}

	return nil
}

// GetByID retrieves a role with its permission set by primary id.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByName retrieves a role with its permission set by unique name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"name": name})
}

// List returns every role, active or not, ordered by name.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select(roleColumns...).
		From("iam.roles").
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	roles, err := r.queryRoles(ctx, stmt, args)
	if err != nil {
		return nil, err
	}

	return attachRolePermissions(ctx, r.exec, r.builder, roles)
}

// Update persists the role's mutable fields.
func (r *RoleRepository) Update(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Update("iam.roles").
		Set("name", role.Name).
		Set("description", role.Description).
		Set("is_active", role.IsActive).
		Set("updated_at", role.UpdatedAt).
		Where(squirrel.Eq{"id": role.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update role sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("update role: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Deactivate flags the role inactive. Assignments are left intact so
// historical grants stay resolvable.
func (r *RoleRepository) Deactivate(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("iam.roles").
		Set("is_active", false).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate role sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deactivate role: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// AssignPermission adds a (feature, action) pair to the role. A duplicate
// trips the composite primary key and surfaces as ErrConflict.
func (r *RoleRepository) AssignPermission(ctx context.Context, roleID string, p domain.Permission) error {
	stmt, args, err := r.builder.Insert("iam.role_permissions").
		Columns("role_id", "feature", "action").
		Values(roleID, string(p.Feature), string(p.Action)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build assign permission sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("assign permission: %w", err)
	}

	return nil
}

// RemovePermission drops a (feature, action) pair from the role.
func (r *RoleRepository) RemovePermission(ctx context.Context, roleID string, p domain.Permission) error {
	stmt, args, err := r.builder.Delete("iam.role_permissions").
		Where(squirrel.Eq{
			"role_id": roleID,
			"feature": string(p.Feature),
			"action":  string(p.Action),
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build remove permission sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("remove permission: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListByUser returns the roles assigned to a user with permissions loaded.
func (r *RoleRepository) ListByUser(ctx context.Context, userID string) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select(prefixColumns("r", roleColumns)...).
		From("iam.roles r").
		Join("iam.user_roles ur ON ur.role_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("r.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles by user sql: %w", err)
	}

	roles, err := r.queryRoles(ctx, stmt, args)
	if err != nil {
		return nil, err
	}

	return attachRolePermissions(ctx, r.exec, r.builder, roles)
}

func (r *RoleRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.Role, error) {
	stmt, args, err := r.builder.Select(roleColumns...).
		From("iam.roles").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	role, err := scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, err
	}

	roles, err := attachRolePermissions(ctx, r.exec, r.builder, []domain.Role{*role})
	if err != nil {
		return nil, err
	}

	return &roles[0], nil
}

func (r *RoleRepository) queryRoles(ctx context.Context, stmt string, args []any) ([]domain.Role, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
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
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

func scanRole(row pgx.Row) (*domain.Role, error) {
	var role domain.Role

	if err := row.Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&role.IsActive,
		&role.CreatedAt,
		&role.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}

	return &role, nil
}

// attachRolePermissions loads the permission rows for a batch of roles in
// one query and distributes them by role id.
func attachRolePermissions(ctx context.Context, exec pgExecutor, builder squirrel.StatementBuilderType, roles []domain.Role) ([]domain.Role, error) {
	if len(roles) == 0 {
		return roles, nil
	}

	ids := make([]string, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
	}

	stmt, args, err := builder.Select("role_id", "feature", "action").
		From("iam.role_permissions").
		Where(squirrel.Eq{"role_id": ids}).
		OrderBy("role_id", "feature", "action").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role permissions sql: %w", err)
	}

	rows, err := exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	defer rows.Close()

	byRole := make(map[string][]domain.Permission, len(roles))
	for rows.Next() {
		var roleID, feature, action string
		if err := rows.Scan(&roleID, &feature, &action); err != nil {
			return nil, fmt.Errorf("scan role permission: %w", err)
		}
		byRole[roleID] = append(byRole[roleID], domain.Permission{
			Feature: domain.Feature(feature),
			Action:  domain.Action(action),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role permissions: %w", err)
	}

	for i := range roles {
		roles[i].Permissions = byRole[roles[i].ID]
	}

	return roles, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
