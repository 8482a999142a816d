package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pennywise-app/pennywise/internal/shared"
)

// Service orchestrates catalog, role store and assignment operations.
type Service struct {
	repo   Repository
	audit  shared.AuditSink
	logger *slog.Logger
}

// NewService constructs a Service. The audit sink may be nil.
func NewService(repo Repository, audit shared.AuditSink, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ListPermissions returns the full permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreatePermission registers a new capability in the catalog.
func (s *Service) CreatePermission(ctx context.Context, actorID int64, name, description string) (Permission, error) {
	name = normalizeName(name)
	if name == "" {
		return Permission{}, errors.New("rbac: permission name required")
	}
	perm, err := s.repo.CreatePermission(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Permission{}, err
	}
	s.record(actorID, "rbac.permission.create", "permission", perm.ID, map[string]any{"name": perm.Name})
	return perm, nil
}

// ListRoles returns all roles with their permission IDs attached.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new non-system role.
func (s *Service) CreateRole(ctx context.Context, actorID int64, name, description string) (Role, error) {
	name = normalizeName(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description), false)
	if err != nil {
		return Role{}, err
	}
	s.record(actorID, "rbac.role.create", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole renames or re-describes a role. Renaming a system role is
// refused; updating only its description is allowed.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, name, description string) (Role, error) {
	name = normalizeName(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if current.IsSystem && name != current.Name {
		return Role{}, ErrForbidden
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.record(actorID, "rbac.role.update", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// DeleteRole removes a role. System roles are refused outright; roles still
// held by users fail with RoleInUseError carrying the blocking user IDs.
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrForbidden
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(actorID, "rbac.role.delete", "role", id, map[string]any{"name": role.Name})
	return nil
}

// SetRolePermissions replaces the role's permission set, all or nothing.
// Calling twice with the same set is a no-op in effect.
func (s *Service) SetRolePermissions(ctx context.Context, actorID, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.ReplaceRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	s.record(actorID, "rbac.role.set_permissions", "role", roleID, map[string]any{"count": len(permissionIDs)})
	return nil
}

// AssignPermissionToRole adds one edge; an existing edge is a no-op.
func (s *Service) AssignPermissionToRole(ctx context.Context, actorID, roleID, permissionID int64) error {
	if err := s.repo.AttachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.record(actorID, "rbac.role.assign_permission", "role", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

// RemovePermissionFromRole removes one edge; a missing edge is a no-op.
func (s *Service) RemovePermissionFromRole(ctx context.Context, actorID, roleID, permissionID int64) error {
	if err := s.repo.DetachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.record(actorID, "rbac.role.remove_permission", "role", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

// AssignRoleToUser grants a role; repeated grants are no-ops. A missing
// user or role fails with ErrNotFound.
func (s *Service) AssignRoleToUser(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.repo.AssignUserRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.record(actorID, "rbac.user.assign_role", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// RemoveRoleFromUser revokes a role; a missing edge is a no-op.
func (s *Service) RemoveRoleFromUser(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.repo.RemoveUserRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.record(actorID, "rbac.user.remove_role", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// GetUserRoles returns the roles held by a user.
func (s *Service) GetUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.ListUserRoles(ctx, userID)
}

// GetUsersByRole returns the IDs of users holding a role.
func (s *Service) GetUsersByRole(ctx context.Context, roleID int64) ([]int64, error) {
	return s.repo.ListRoleUserIDs(ctx, roleID)
}

func (s *Service) record(actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(shared.AuditEvent{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
