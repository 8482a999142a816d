package rbac

import "context"

// Effective permissions are always resolved against the live assignment
// tables. Caching is deliberately absent: role and permission edges change
// through the admin surface between requests, and a stale cache would open
// privilege-escalation or lockout windows. The price is one join per
// authorization decision.

// EffectivePermissions returns the deduplicated union of permission names
// across every role the user holds. A user with no roles yields an empty
// set, not an error.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.UserPermissions(ctx, userID)
}

// HasPermission reports whether the user holds the named permission through
// any role.
func (s *Service) HasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	permission = normalizeName(permission)
	if permission == "" {
		return false, nil
	}
	return s.repo.UserHasPermission(ctx, userID, permission)
}

// HasAnyPermission reports whether the user holds at least one of the named
// permissions. An empty candidate list is false, never an error.
func (s *Service) HasAnyPermission(ctx context.Context, userID int64, permissions []string) (bool, error) {
	normalized := normalizePermissions(permissions)
	if len(normalized) == 0 {
		return false, nil
	}
	return s.repo.UserHasAnyPermission(ctx, userID, normalized)
}

// HasRole reports role membership independent of the role's permissions.
func (s *Service) HasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	roleName = normalizeName(roleName)
	if roleName == "" {
		return false, nil
	}
	return s.repo.UserHasRole(ctx, userID, roleName)
}

func normalizePermissions(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = normalizeName(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
