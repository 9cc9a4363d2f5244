package auth

// Role names a permission grant. Users hold zero or more roles.
type Role string

const (
	// RoleSuperadmin grants every capability unconditionally.
	RoleSuperadmin Role = "superadmin"
	// RoleDataSource is the system-wide data source permission. Holders may
	// create maintenance events and operate on any event regardless of its
	// linked scope.
	RoleDataSource Role = "data-source"
)

// Identity is the authenticated caller: a subject plus its role set.
type Identity struct {
	Subject string
	Roles   []Role
}

// IsAdmin reports whether the identity holds the superadmin role.
func (id Identity) IsAdmin() bool {
	return id.HasRole(RoleSuperadmin)
}

// HasRole reports whether the identity holds the given role.
func (id Identity) HasRole(role Role) bool {
	for _, held := range id.Roles {
		if held == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity holds at least one of the roles.
func (id Identity) HasAnyRole(roles []Role) bool {
	for _, role := range roles {
		if id.HasRole(role) {
			return true
		}
	}
	return false
}

// RolesFromStrings converts raw role names, dropping empties.
func RolesFromStrings(values []string) []Role {
	roles := make([]Role, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		roles = append(roles, Role(value))
	}
	return roles
}

// RolesToStrings converts roles back to raw names.
func RolesToStrings(roles []Role) []string {
	values := make([]string, 0, len(roles))
	for _, role := range roles {
		values = append(values, string(role))
	}
	return values
}
