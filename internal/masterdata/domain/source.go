package masterdata

import "scada-maintenance/internal/auth"

// DataSource is a device or protocol connection owning a set of data points.
type DataSource struct {
	ID        int
	XID       string
	Name      string
	EditRoles []auth.Role
}

// EditableBy reports whether the identity may edit this source. Superadmin
// always may; otherwise the identity needs one of the source's edit roles.
func (s DataSource) EditableBy(identity auth.Identity) bool {
	if identity.IsAdmin() {
		return true
	}
	return identity.HasAnyRole(s.EditRoles)
}
