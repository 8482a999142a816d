package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Seed ensures the built-in permission catalog and the system roles exist,
// then reconciles the legacy flags against the RBAC tables. Safe to run on
// every startup.
func Seed(ctx context.Context, repo Repository, logger *slog.Logger) error {
	for _, entry := range Catalog() {
		if _, err := repo.UpsertPermission(ctx, entry.Name, entry.Description); err != nil {
			return fmt.Errorf("rbac: seed permission %s: %w", entry.Name, err)
		}
	}

	systemRoles := []struct {
		name        string
		description string
	}{
		{RoleAdmin, "Full administrative access"},
		{RoleUser, "Default role for registered users"},
	}
	for _, sr := range systemRoles {
		if _, err := repo.CreateRole(ctx, sr.name, sr.description, true); err != nil {
			if errors.Is(err, ErrDuplicateName) {
				continue
			}
			return fmt.Errorf("rbac: seed role %s: %w", sr.name, err)
		}
	}

	return NewReconciler(repo, logger).Run(ctx)
}
