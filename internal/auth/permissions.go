package auth

import "slices"

// Permission is a capability checked by the API's permission middleware.
type Permission string

const (
	PermDeviceRead    Permission = "device:read"
	PermDeviceOperate Permission = "device:operate"
	PermAutomationRun Permission = "automation:run"
	PermActivityRead  Permission = "activity:read"
	PermSystemAdmin   Permission = "system:admin"
)

// AllPermissions lists every permission, lowest tier first.
var AllPermissions = []Permission{
	PermDeviceRead,
	PermDeviceOperate,
	PermAutomationRun,
	PermActivityRead,
	PermSystemAdmin,
}

// minimumRole is the lowest role granted each permission. Roles are a
// ladder: every role holds the permissions of the roles below it.
var minimumRole = map[Permission]Role{
	PermDeviceRead:    RoleViewer,
	PermDeviceOperate: RoleOperator,
	PermAutomationRun: RoleOperator,
	PermActivityRead:  RoleAdmin,
	PermSystemAdmin:   RoleAdmin,
}

// rank orders roles on the ladder; 0 means unknown.
func rank(r Role) int {
	return slices.Index(ValidRoles, r) + 1
}

// HasPermission reports whether role holds perm.
func HasPermission(role Role, perm Permission) bool {
	floor, ok := minimumRole[perm]
	if !ok {
		return false
	}
	have := rank(role)
	return have > 0 && have >= rank(floor)
}

// PermissionsForRole returns the permissions role holds, or nil for an
// unknown role.
func PermissionsForRole(role Role) []Permission {
	if rank(role) == 0 {
		return nil
	}
	var perms []Permission
	for _, p := range AllPermissions {
		if HasPermission(role, p) {
			perms = append(perms, p)
		}
	}
	return perms
}
