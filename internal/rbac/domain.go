package rbac

import "strings"

// Role is the single role enum every actor carries.
type Role string

const (
	RoleStaff             Role = "staff"
	RoleChef              Role = "chef"
	RoleStorekeeper       Role = "storekeeper"
	RoleOperationsManager Role = "operations_manager"
	RoleFinance           Role = "finance"
	RoleDirector          Role = "director"
	RoleAdmin             Role = "admin"
)

// Permission names an atomic capability.
type Permission = string

const (
	PermOrdersView          Permission = "orders.view"
	PermOrdersPlace         Permission = "orders.place"
	PermOrdersUpdate        Permission = "orders.update"
	PermInventoryView       Permission = "inventory.view"
	PermInventoryManage     Permission = "inventory.manage"
	PermRecipesView         Permission = "recipes.view"
	PermRecipesManage       Permission = "recipes.manage"
	PermMenuView            Permission = "menu.view"
	PermMenuManage          Permission = "menu.manage"
	PermTablesView          Permission = "tables.view"
	PermTablesManage        Permission = "tables.manage"
	PermRequisitionsCreate  Permission = "requisitions.create"
	PermRequisitionsApprove Permission = "requisitions.approve"
	PermRequisitionsViewAll Permission = "requisitions.view_all"
	PermReportsView         Permission = "reports.view"
)

var floorPermissions = []Permission{
	PermOrdersView, PermOrdersPlace, PermOrdersUpdate,
	PermMenuView, PermTablesView, PermTablesManage,
	PermRequisitionsCreate,
}

var managerPermissions = []Permission{
	PermRequisitionsApprove, PermRequisitionsViewAll, PermReportsView,
	PermInventoryView, PermRecipesView, PermMenuView,
}

// rolePermissions is the static grant table.
var rolePermissions = map[Role][]Permission{
	RoleStaff: floorPermissions,
	RoleChef: append(append([]Permission{}, floorPermissions...),
		PermInventoryView, PermRecipesView, PermRecipesManage, PermMenuManage),
	RoleStorekeeper: {
		PermInventoryView, PermInventoryManage, PermRecipesView, PermMenuView, PermRequisitionsCreate,
	},
	RoleOperationsManager: append(append([]Permission{}, managerPermissions...),
		PermOrdersView, PermOrdersUpdate, PermInventoryManage, PermRequisitionsCreate, PermTablesView),
	RoleFinance:  append([]Permission{PermRequisitionsCreate}, managerPermissions...),
	RoleDirector: append([]Permission{PermRequisitionsCreate, PermOrdersView}, managerPermissions...),
	RoleAdmin:    allPermissions(),
}

// ParseRole normalises raw into a known role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := rolePermissions[role]
	return role, ok
}

func allPermissions() []Permission {
	return []Permission{
		PermOrdersView, PermOrdersPlace, PermOrdersUpdate,
		PermInventoryView, PermInventoryManage,
		PermRecipesView, PermRecipesManage,
		PermMenuView, PermMenuManage,
		PermTablesView, PermTablesManage,
		PermRequisitionsCreate, PermRequisitionsApprove, PermRequisitionsViewAll,
		PermReportsView,
	}
}
