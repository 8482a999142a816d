package rbac

import (
	"strings"
	"time"
)

// Role represents a named bundle of permissions. System roles are protected
// from rename and deletion.
type Role struct {
	ID          int64
	Name        string
	Description string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// PermissionIDs is populated by listing calls for administrative
	// display. It is never consulted on the authorization hot path.
	PermissionIDs []int64
}

// Permission represents an atomic capability such as "budgets:delete".
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// Category returns the resource category encoded in the permission name
// prefix ("budgets:delete" -> "budgets"). Permissions without a prefix
// return an empty category.
func (p Permission) Category() string {
	if i := strings.IndexByte(p.Name, ':'); i > 0 {
		return p.Name[:i]
	}
	return ""
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}

// Principal describes the authenticated actor as seen by the guards.
// LegacyRole carries the pre-RBAC single-role flag still present on the
// users table; it is a coarse read-only signal, the RBAC tables are the
// authoritative source.
type Principal struct {
	ID         int64
	LegacyRole string
}

// Legacy role flag values.
const (
	LegacyRoleAdmin = "admin"
	LegacyRoleUser  = "user"
)

// IsLegacyAdmin reports whether the principal carries the legacy admin flag.
func (p Principal) IsLegacyAdmin() bool {
	return p.LegacyRole == LegacyRoleAdmin
}

// System role names seeded at startup.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
