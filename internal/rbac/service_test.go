package rbac

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pennywise-app/pennywise/internal/shared"
)

type memoryRepo struct {
	perms        map[int64]Permission
	roles        map[int64]Role
	rolePerms    map[int64]map[int64]struct{}
	userRoles    map[int64]map[int64]struct{}
	legacyAdmins []int64
	nextID       int64
	failAll      error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		perms:     make(map[int64]Permission),
		roles:     make(map[int64]Role),
		rolePerms: make(map[int64]map[int64]struct{}),
		userRoles: make(map[int64]map[int64]struct{}),
	}
}

func (r *memoryRepo) next() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	if r.failAll != nil {
		return nil, r.failAll
	}
	out := make([]Permission, 0, len(r.perms))
	for _, p := range r.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	if r.failAll != nil {
		return Permission{}, r.failAll
	}
	for _, p := range r.perms {
		if p.Name == name {
			return Permission{}, ErrDuplicateName
		}
	}
	p := Permission{ID: r.next(), Name: name, Description: description}
	r.perms[p.ID] = p
	return p, nil
}

func (r *memoryRepo) UpsertPermission(ctx context.Context, name, description string) (Permission, error) {
	if r.failAll != nil {
		return Permission{}, r.failAll
	}
	for id, p := range r.perms {
		if p.Name == name {
			p.Description = description
			r.perms[id] = p
			return p, nil
		}
	}
	p := Permission{ID: r.next(), Name: name, Description: description}
	r.perms[p.ID] = p
	return p, nil
}

func (r *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	if r.failAll != nil {
		return nil, r.failAll
	}
	out := make([]Role, 0, len(r.roles))
	for id, role := range r.roles {
		for permID := range r.rolePerms[id] {
			role.PermissionIDs = append(role.PermissionIDs, permID)
		}
		sort.Slice(role.PermissionIDs, func(i, j int) bool { return role.PermissionIDs[i] < role.PermissionIDs[j] })
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	if r.failAll != nil {
		return Role{}, r.failAll
	}
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (r *memoryRepo) GetRoleByName(ctx context.Context, name string) (Role, error) {
	if r.failAll != nil {
		return Role{}, r.failAll
	}
	for _, role := range r.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, ErrNotFound
}

func (r *memoryRepo) CreateRole(ctx context.Context, name, description string, system bool) (Role, error) {
	if r.failAll != nil {
		return Role{}, r.failAll
	}
	for _, role := range r.roles {
		if role.Name == name {
			return Role{}, ErrDuplicateName
		}
	}
	role := Role{ID: r.next(), Name: name, Description: description, IsSystem: system, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.roles[role.ID] = role
	r.rolePerms[role.ID] = make(map[int64]struct{})
	return role, nil
}

func (r *memoryRepo) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	for otherID, other := range r.roles {
		if otherID != id && other.Name == name {
			return Role{}, ErrDuplicateName
		}
	}
	role.Name = name
	role.Description = description
	role.UpdatedAt = time.Now()
	r.roles[id] = role
	return role, nil
}

func (r *memoryRepo) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := r.roles[id]; !ok {
		return ErrNotFound
	}
	var holders []int64
	for userID, roles := range r.userRoles {
		if _, ok := roles[id]; ok {
			holders = append(holders, userID)
		}
	}
	if len(holders) > 0 {
		sort.Slice(holders, func(i, j int) bool { return holders[i] < holders[j] })
		return &RoleInUseError{RoleID: id, UserIDs: holders}
	}
	delete(r.roles, id)
	delete(r.rolePerms, id)
	return nil
}

func (r *memoryRepo) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if r.failAll != nil {
		return r.failAll
	}
	if _, ok := r.roles[roleID]; !ok {
		return ErrNotFound
	}
	set := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		if _, ok := r.perms[id]; !ok {
			return ErrNotFound
		}
		set[id] = struct{}{}
	}
	r.rolePerms[roleID] = set
	return nil
}

func (r *memoryRepo) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	if _, ok := r.roles[roleID]; !ok {
		return ErrNotFound
	}
	if _, ok := r.perms[permissionID]; !ok {
		return ErrNotFound
	}
	r.rolePerms[roleID][permissionID] = struct{}{}
	return nil
}

func (r *memoryRepo) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	if set, ok := r.rolePerms[roleID]; ok {
		delete(set, permissionID)
	}
	return nil
}

func (r *memoryRepo) AssignUserRole(ctx context.Context, userID, roleID int64) error {
	if r.failAll != nil {
		return r.failAll
	}
	if _, ok := r.roles[roleID]; !ok {
		return ErrNotFound
	}
	if r.userRoles[userID] == nil {
		r.userRoles[userID] = make(map[int64]struct{})
	}
	r.userRoles[userID][roleID] = struct{}{}
	return nil
}

func (r *memoryRepo) RemoveUserRole(ctx context.Context, userID, roleID int64) error {
	if set, ok := r.userRoles[userID]; ok {
		delete(set, roleID)
	}
	return nil
}

func (r *memoryRepo) ListUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	var out []Role
	for roleID := range r.userRoles[userID] {
		out = append(out, r.roles[roleID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) ListRoleUserIDs(ctx context.Context, roleID int64) ([]int64, error) {
	var out []int64
	for userID, roles := range r.userRoles {
		if _, ok := roles[roleID]; ok {
			out = append(out, userID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *memoryRepo) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	if r.failAll != nil {
		return nil, r.failAll
	}
	seen := make(map[string]struct{})
	var names []string
	for roleID := range r.userRoles[userID] {
		for permID := range r.rolePerms[roleID] {
			name := r.perms[permID].Name
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *memoryRepo) UserHasPermission(ctx context.Context, userID int64, name string) (bool, error) {
	if r.failAll != nil {
		return false, r.failAll
	}
	names, _ := r.UserPermissions(ctx, userID)
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) UserHasAnyPermission(ctx context.Context, userID int64, names []string) (bool, error) {
	if r.failAll != nil {
		return false, r.failAll
	}
	for _, name := range names {
		if ok, _ := r.UserHasPermission(ctx, userID, name); ok {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) UserHasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	if r.failAll != nil {
		return false, r.failAll
	}
	for roleID := range r.userRoles[userID] {
		if r.roles[roleID].Name == roleName {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) ListLegacyAdminIDs(ctx context.Context) ([]int64, error) {
	if r.failAll != nil {
		return nil, r.failAll
	}
	return append([]int64(nil), r.legacyAdmins...), nil
}

var _ Repository = (*memoryRepo)(nil)

type recordingSink struct {
	events []shared.AuditEvent
}

func (s *recordingSink) Record(event shared.AuditEvent) {
	s.events = append(s.events, event)
}

func TestServiceCreateRoleDuplicateName(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, 1, "Auditor", "read only")
	require.NoError(t, err)

	_, err = svc.CreateRole(ctx, 1, "auditor", "case insensitive duplicate")
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestServiceUpdateSystemRole(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	role, err := repo.CreateRole(ctx, RoleAdmin, "system", true)
	require.NoError(t, err)

	_, err = svc.UpdateRole(ctx, 1, role.ID, "superadmin", "")
	require.ErrorIs(t, err, ErrForbidden)

	updated, err := svc.UpdateRole(ctx, 1, role.ID, RoleAdmin, "full access")
	require.NoError(t, err)
	require.Equal(t, "full access", updated.Description)
}

func TestServiceDeleteSystemRole(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	role, err := repo.CreateRole(ctx, RoleUser, "system", true)
	require.NoError(t, err)

	require.ErrorIs(t, svc.DeleteRole(ctx, 1, role.ID), ErrForbidden)
}

func TestServiceDeleteRoleInUse(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, 1, "auditor", "")
	require.NoError(t, err)
	require.NoError(t, repo.AssignUserRole(ctx, 7, role.ID))
	require.NoError(t, repo.AssignUserRole(ctx, 3, role.ID))

	err = svc.DeleteRole(ctx, 1, role.ID)
	var inUse *RoleInUseError
	require.ErrorAs(t, err, &inUse)
	require.Equal(t, role.ID, inUse.RoleID)
	require.Equal(t, []int64{3, 7}, inUse.UserIDs)

	// Releasing the holders makes the delete succeed.
	require.NoError(t, repo.RemoveUserRole(ctx, 7, role.ID))
	require.NoError(t, repo.RemoveUserRole(ctx, 3, role.ID))
	require.NoError(t, svc.DeleteRole(ctx, 1, role.ID))

	_, err = svc.GetRole(ctx, role.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceSetRolePermissionsExactSet(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, 1, "auditor", "")
	require.NoError(t, err)
	read, err := repo.CreatePermission(ctx, PermExpensesReadAll, "")
	require.NoError(t, err)
	manage, err := repo.CreatePermission(ctx, PermExpensesManageAll, "")
	require.NoError(t, err)

	require.NoError(t, svc.SetRolePermissions(ctx, 1, role.ID, []int64{read.ID, manage.ID}))
	require.NoError(t, repo.AssignUserRole(ctx, 7, role.ID))

	perms, err := svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{PermExpensesManageAll, PermExpensesReadAll}, perms)

	// Replacement is exact: what is absent from the new set is revoked.
	require.NoError(t, svc.SetRolePermissions(ctx, 1, role.ID, []int64{read.ID}))
	perms, err = svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{PermExpensesReadAll}, perms)

	// The empty set strips the role entirely.
	require.NoError(t, svc.SetRolePermissions(ctx, 1, role.ID, nil))
	perms, err = svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestServiceSetRolePermissionsMissingRole(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	err := svc.SetRolePermissions(context.Background(), 1, 404, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceAssignRoleIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, 1, "auditor", "")
	require.NoError(t, err)

	require.NoError(t, svc.AssignRoleToUser(ctx, 1, 7, role.ID))
	require.NoError(t, svc.AssignRoleToUser(ctx, 1, 7, role.ID))

	roles, err := svc.GetUserRoles(ctx, 7)
	require.NoError(t, err)
	require.Len(t, roles, 1)

	require.ErrorIs(t, svc.AssignRoleToUser(ctx, 1, 7, 404), ErrNotFound)
}

func TestServiceMutationsRecordAudit(t *testing.T) {
	repo := newMemoryRepo()
	sink := &recordingSink{}
	svc := NewService(repo, sink, nil)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, 42, "auditor", "")
	require.NoError(t, err)
	require.NoError(t, svc.AssignRoleToUser(ctx, 42, 7, role.ID))

	require.Len(t, sink.events, 2)
	require.Equal(t, "rbac.role.create", sink.events[0].Action)
	require.Equal(t, int64(42), sink.events[0].ActorID)
	require.Equal(t, "rbac.user.assign_role", sink.events[1].Action)
}

func TestServiceCreatePermissionNormalizesName(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	perm, err := svc.CreatePermission(ctx, 1, "  Reports:VIEW  ", "view reports")
	require.NoError(t, err)
	require.Equal(t, "reports:view", perm.Name)
	require.Equal(t, "reports", perm.Category())

	_, err = svc.CreatePermission(ctx, 1, "   ", "")
	require.Error(t, err)
}
