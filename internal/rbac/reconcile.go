package rbac

import (
	"context"
	"fmt"
	"log/slog"
)

// Reconciler keeps the legacy role flag and the RBAC tables in agreement:
// every user whose legacy flag is "admin" must hold the RBAC admin role,
// and the admin role must hold the full permission catalog.
//
// The routine never de-escalates: clearing a user's legacy flag does not
// remove an RBAC admin grant. Revocation stays an explicit administrative
// action.
type Reconciler struct {
	repo   Repository
	logger *slog.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(repo Repository, logger *slog.Logger) *Reconciler {
	return &Reconciler{repo: repo, logger: logger}
}

// Run executes both reconciliation phases. Every step is idempotent, so an
// interrupted run is repaired by running again; no atomicity is claimed
// across the two phases.
func (rc *Reconciler) Run(ctx context.Context) error {
	adminRole, err := rc.repo.GetRoleByName(ctx, RoleAdmin)
	if err != nil {
		return fmt.Errorf("rbac: reconcile: admin role: %w", err)
	}

	// Phase 1: legacy admins gain the RBAC admin role.
	adminIDs, err := rc.repo.ListLegacyAdminIDs(ctx)
	if err != nil {
		return fmt.Errorf("rbac: reconcile: list legacy admins: %w", err)
	}
	for _, userID := range adminIDs {
		if err := rc.repo.AssignUserRole(ctx, userID, adminRole.ID); err != nil {
			return fmt.Errorf("rbac: reconcile: assign admin to user %d: %w", userID, err)
		}
	}

	// Phase 2: the admin role holds every permission in the catalog.
	perms, err := rc.repo.ListPermissions(ctx)
	if err != nil {
		return fmt.Errorf("rbac: reconcile: list permissions: %w", err)
	}
	permIDs := make([]int64, 0, len(perms))
	for _, p := range perms {
		permIDs = append(permIDs, p.ID)
	}
	if err := rc.repo.ReplaceRolePermissions(ctx, adminRole.ID, permIDs); err != nil {
		return fmt.Errorf("rbac: reconcile: sync admin permissions: %w", err)
	}

	if rc.logger != nil {
		rc.logger.Info("rbac reconciliation complete",
			slog.Int("legacy_admins", len(adminIDs)),
			slog.Int("permissions", len(permIDs)))
	}
	return nil
}
