package session

// Role is a portal user role. Roles arrive upper-cased from some
// backend revisions and are normalised to lower case on login.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleBuilder    Role = "builder"
	RoleBroker     Role = "broker"
	RoleTelecaller Role = "telecaller"
	RoleCA         Role = "ca"
	RoleSalesAgent Role = "sales_agent"
)

// Permission is a portal capability. The role→permission table below
// is fixed: no wildcards, no inheritance.
type Permission string

const (
	PermManageProjects   Permission = "projects:manage"
	PermViewProjects     Permission = "projects:view"
	PermManageLeads      Permission = "leads:manage"
	PermViewLeads        Permission = "leads:view"
	PermManageProperties Permission = "properties:manage"
	PermViewProperties   Permission = "properties:view"
	PermViewLoans        Permission = "loans:view"
	PermApplyLoans       Permission = "loans:apply"
	PermManageUsers      Permission = "users:manage"
)

var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermManageProjects, PermViewProjects,
		PermManageLeads, PermViewLeads,
		PermManageProperties, PermViewProperties,
		PermViewLoans, PermApplyLoans,
		PermManageUsers,
	},
	RoleBuilder: {
		PermManageProjects, PermViewProjects,
		PermManageProperties, PermViewProperties,
		PermViewLeads, PermViewLoans,
	},
	RoleBroker: {
		PermManageProperties, PermViewProperties,
		PermManageLeads, PermViewLeads,
		PermViewProjects, PermViewLoans, PermApplyLoans,
	},
	RoleTelecaller: {
		PermManageLeads, PermViewLeads,
	},
	RoleCA: {
		PermViewLeads, PermViewLoans, PermApplyLoans,
	},
	RoleSalesAgent: {
		PermManageLeads, PermViewLeads,
		PermViewProperties, PermViewProjects, PermViewLoans,
	},
}

// RolePermissions returns the permission set for a role, nil for an
// unknown role.
func RolePermissions(role Role) []Permission {
	return rolePermissions[role]
}

func roleHasPermission(role Role, permission Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}
