package auth

import (
	"errors"
	"slices"
)

// Role is the tier carried in a token's role claim.
type Role string

const (
	// RoleViewer reads rabbits, their state, snapshots and triggers.
	RoleViewer Role = "viewer"

	// RoleOperator also sends commands and runs automations.
	RoleOperator Role = "operator"

	// RoleAdmin also reads the activity log and bridge statistics.
	RoleAdmin Role = "admin"
)

// ValidRoles lists the roles a token may carry, lowest first.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrInvalidRole  = errors.New("auth: invalid role")
	ErrNoSecret     = errors.New("auth: jwt secret is not configured")
	ErrForbidden    = errors.New("auth: insufficient permissions")
)
