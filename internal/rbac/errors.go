package rbac

import (
	"errors"
	"fmt"
)

// Error taxonomy for the authorization engine. Callers are expected to
// branch with errors.Is / errors.As; the HTTP layer maps these to 404, 409,
// 403, 401 and 503 respectively.
var (
	// ErrNotFound indicates the requested role, permission or user does
	// not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrDuplicateName indicates a role or permission name collision.
	ErrDuplicateName = errors.New("rbac: duplicate name")
	// ErrForbidden indicates a denied operation: a missing capability, or
	// an attempt to rename or delete a system-protected role.
	ErrForbidden = errors.New("rbac: forbidden")
	// ErrUnauthenticated indicates no resolvable principal on the request.
	ErrUnauthenticated = errors.New("rbac: unauthenticated")
	// ErrUnavailable indicates the authorization store failed during a
	// check. It is deliberately distinct from ErrForbidden: a denial must
	// be a positive result of a check, never a side effect of an outage.
	ErrUnavailable = errors.New("rbac: authorization unavailable")
)

// RoleInUseError is returned when a role cannot be deleted because users
// still hold it. UserIDs carries the blocking principals.
type RoleInUseError struct {
	RoleID  int64
	UserIDs []int64
}

func (e *RoleInUseError) Error() string {
	return fmt.Sprintf("rbac: role %d still assigned to %d user(s)", e.RoleID, len(e.UserIDs))
}
