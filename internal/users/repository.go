package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pennywise-app/pennywise/internal/rbac"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all users ordered by id.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, name, legacy_role, is_active, created_at, updated_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.LegacyRole, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetUser fetches a user by ID.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, legacy_role, is_active, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.LegacyRole, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, rbac.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// FindPrincipal resolves an active user into the principal consumed by the
// authorization guards. A missing or deactivated account maps to
// rbac.ErrNotFound so a lingering session reads as stale, while any other
// error propagates as a store failure.
func (r *Repository) FindPrincipal(ctx context.Context, id int64) (rbac.Principal, error) {
	var p rbac.Principal
	err := r.pool.QueryRow(ctx,
		`SELECT id, legacy_role FROM users WHERE id = $1 AND is_active`, id,
	).Scan(&p.ID, &p.LegacyRole)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Principal{}, rbac.ErrNotFound
		}
		return rbac.Principal{}, err
	}
	return p, nil
}

var _ rbac.PrincipalStore = (*Repository)(nil)
