package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pennywise-app/pennywise/internal/platform/db"
)

// Repository defines persistence operations for the authorization engine.
type Repository interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	CreatePermission(ctx context.Context, name, description string) (Permission, error)
	UpsertPermission(ctx context.Context, name, description string) (Permission, error)

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, name, description string, system bool) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error

	AssignUserRole(ctx context.Context, userID, roleID int64) error
	RemoveUserRole(ctx context.Context, userID, roleID int64) error
	ListUserRoles(ctx context.Context, userID int64) ([]Role, error)
	ListRoleUserIDs(ctx context.Context, roleID int64) ([]int64, error)

	UserPermissions(ctx context.Context, userID int64) ([]string, error)
	UserHasPermission(ctx context.Context, userID int64, name string) (bool, error)
	UserHasAnyPermission(ctx context.Context, userID int64, names []string) (bool, error)
	UserHasRole(ctx context.Context, userID int64, roleName string) (bool, error)

	ListLegacyAdminIDs(ctx context.Context) ([]int64, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// ListPermissions returns all permissions ordered by name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// CreatePermission inserts a new permission. Name collisions map to
// ErrDuplicateName.
func (r *PGRepository) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, description) VALUES ($1, $2) RETURNING id, name, description`,
		name, description,
	).Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		return Permission{}, mapConstraint(err)
	}
	return p, nil
}

// UpsertPermission inserts or refreshes a permission by name. Used by
// catalog seeding, which must be idempotent.
func (r *PGRepository) UpsertPermission(ctx context.Context, name, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, description) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		 RETURNING id, name, description`,
		name, description,
	).Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// ListRoles returns all roles ordered by name with their permission IDs
// attached for administrative display.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, is_system, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	index := make(map[int64]int)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		index[role.ID] = len(roles)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges, err := r.pool.Query(ctx, `SELECT role_id, permission_id FROM role_permissions ORDER BY permission_id`)
	if err != nil {
		return nil, err
	}
	defer edges.Close()
	for edges.Next() {
		var roleID, permID int64
		if err := edges.Scan(&roleID, &permID); err != nil {
			return nil, err
		}
		if i, ok := index[roleID]; ok {
			roles[i].PermissionIDs = append(roles[i].PermissionIDs, permID)
		}
	}
	return roles, edges.Err()
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	return r.scanRole(r.pool.QueryRow(ctx,
		`SELECT id, name, description, is_system, created_at, updated_at FROM roles WHERE id = $1`, id))
}

// GetRoleByName fetches a role by its unique name.
func (r *PGRepository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return r.scanRole(r.pool.QueryRow(ctx,
		`SELECT id, name, description, is_system, created_at, updated_at FROM roles WHERE name = $1`, name))
}

// CreateRole inserts a new role.
func (r *PGRepository) CreateRole(ctx context.Context, name, description string, system bool) (Role, error) {
	role, err := r.scanRole(r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, description, is_system) VALUES ($1, $2, $3)
		 RETURNING id, name, description, is_system, created_at, updated_at`,
		name, description, system))
	if err != nil {
		return Role{}, mapConstraint(err)
	}
	return role, nil
}

// UpdateRole renames or re-describes a role.
func (r *PGRepository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	role, err := r.scanRole(r.pool.QueryRow(ctx,
		`UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		 WHERE id = $1
		 RETURNING id, name, description, is_system, created_at, updated_at`,
		id, name, description))
	if err != nil {
		return Role{}, mapConstraint(err)
	}
	return role, nil
}

// DeleteRole removes the role and its permission edges in one transaction.
// The in-use check runs inside the same transaction as the delete so a role
// cannot vanish in the same instant it is assigned.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id`, id)
		if err != nil {
			return err
		}
		holders, err := collectIDs(rows)
		if err != nil {
			return err
		}
		if len(holders) > 0 {
			return &RoleInUseError{RoleID: id, UserIDs: holders}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ReplaceRolePermissions swaps the role's permission set for the given one,
// all or nothing. A failed insert leaves the prior set intact.
func (r *PGRepository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				roleID, permID); err != nil {
				return mapConstraint(err)
			}
		}
		return nil
	})
}

// AttachPermission adds a single edge; attaching an existing pair is a no-op.
func (r *PGRepository) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roleID, permissionID)
	return mapConstraint(err)
}

// DetachPermission removes a single edge; removing a missing pair is a no-op.
func (r *PGRepository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	return err
}

// AssignUserRole grants a role to a user; an existing grant is a no-op. A
// missing user or role maps to ErrNotFound via the foreign keys.
func (r *PGRepository) AssignUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID)
	return mapConstraint(err)
}

// RemoveUserRole revokes a role from a user; a missing edge is a no-op.
func (r *PGRepository) RemoveUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// ListUserRoles returns the roles held by a user.
func (r *PGRepository) ListUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.name, r.description, r.is_system, r.created_at, r.updated_at
		 FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1 ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListRoleUserIDs returns the IDs of users still holding the role.
func (r *PGRepository) ListRoleUserIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id`, roleID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// UserPermissions computes the effective permission set: the deduplicated
// union across every role the user holds. Resolved per call, never cached,
// so assignment changes take effect on the next request.
func (r *PGRepository) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT p.name
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 JOIN user_roles ur ON ur.role_id = rp.role_id
		 WHERE ur.user_id = $1
		 ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// UserHasPermission runs a targeted existence query instead of materializing
// the full permission set.
func (r *PGRepository) UserHasPermission(ctx context.Context, userID int64, name string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM user_roles ur
			JOIN role_permissions rp ON rp.role_id = ur.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE ur.user_id = $1 AND p.name = $2
		)`, userID, name).Scan(&ok)
	return ok, err
}

// UserHasAnyPermission reports whether the user holds at least one of names.
func (r *PGRepository) UserHasAnyPermission(ctx context.Context, userID int64, names []string) (bool, error) {
	if len(names) == 0 {
		return false, nil
	}
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM user_roles ur
			JOIN role_permissions rp ON rp.role_id = ur.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE ur.user_id = $1 AND p.name = ANY($2)
		)`, userID, names).Scan(&ok)
	return ok, err
}

// UserHasRole reports role membership independent of permissions.
func (r *PGRepository) UserHasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM user_roles ur
			JOIN roles r ON r.id = ur.role_id
			WHERE ur.user_id = $1 AND r.name = $2
		)`, userID, roleName).Scan(&ok)
	return ok, err
}

// ListLegacyAdminIDs returns the IDs of users whose legacy role flag is
// still "admin". Consumed by the reconciliation routine.
func (r *PGRepository) ListLegacyAdminIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE legacy_role = $1 ORDER BY id`, LegacyRoleAdmin)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func (r *PGRepository) scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// mapConstraint converts PostgreSQL constraint violations into the engine's
// error taxonomy: unique violations become ErrDuplicateName, foreign key
// violations become ErrNotFound.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicateName
		case "23503":
			return ErrNotFound
		}
	}
	return err
}
