package rbac

// Built-in permission names. Handlers reference these constants rather than
// free-form strings so a typo fails at compile time, not at request time.
const (
	PermUsersRead        = "users:read"
	PermUsersManageRoles = "users:manage_roles"

	PermRolesRead   = "roles:read"
	PermRolesManage = "roles:manage"

	PermPermissionsRead   = "permissions:read"
	PermPermissionsManage = "permissions:manage"

	PermExpensesReadAll   = "expenses:read_all"
	PermExpensesManageAll = "expenses:manage_all"

	PermBudgetsReadAll   = "budgets:read_all"
	PermBudgetsManageAll = "budgets:manage_all"

	PermReportsView = "reports:view"
)

// CatalogEntry pairs a permission name with its seeded description.
type CatalogEntry struct {
	Name        string
	Description string
}

// Catalog returns the built-in permission catalog. Seeding upserts every
// entry; additional permissions may still be created at runtime through the
// admin surface.
func Catalog() []CatalogEntry {
	return []CatalogEntry{
		{PermUsersRead, "List user accounts"},
		{PermUsersManageRoles, "Assign and remove user roles"},
		{PermRolesRead, "List roles and their permissions"},
		{PermRolesManage, "Create, update and delete roles"},
		{PermPermissionsRead, "List the permission catalog"},
		{PermPermissionsManage, "Register new permissions"},
		{PermExpensesReadAll, "Read any user's expenses"},
		{PermExpensesManageAll, "Modify any user's expenses"},
		{PermBudgetsReadAll, "Read any user's budgets"},
		{PermBudgetsManageAll, "Modify any user's budgets"},
		{PermReportsView, "View aggregate spending reports"},
	}
}
